// Package mmap provides memory-mapped address spaces for the paging layer.
//
// # Overview
//
// A page space is one contiguous byte region. It is either backed by a file
// (MAP_SHARED, so every process mapping the same file observes the same bytes
// and the same CAS results) or by anonymous memory (private to the process,
// outside the Go heap).
//
// # Usage
//
//	f, _ := os.OpenFile("store.pt", os.O_RDWR|os.O_CREATE, 0o644)
//	m, err := mmap.MapFile(f, 64<<20, true)
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes() // pages live here
//	_ = m.Sync()      // flush dirty pages to the file
//
//	anon, _ := mmap.MapAnon(1 << 20)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2) and madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile for files, VirtualAlloc for
//     anonymous memory (madvise is a no-op)
//
// # Thread Safety
//
// Mapping is safe for concurrent use. Close is idempotent and guarded by an
// atomic flag; callers must ensure nothing touches Bytes() after Close returns.
package mmap
