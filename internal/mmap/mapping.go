package mmap

import (
	"os"
	"sync/atomic"
)

// Mapping represents a mapped address range.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data     []byte
	size     int
	writable bool
	closed   atomic.Bool
	// unmap and flush are the platform-specific release and sync functions.
	unmap func([]byte) error
	flush func([]byte) error
}

// MapFile maps the first size bytes of f into memory.
// The file must already be at least size bytes long. A writable mapping is
// shared, so stores become visible to every other mapping of the same file.
func MapFile(f *os.File, size int, writable bool) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < int64(size) {
		return nil, ErrInvalidSize
	}

	data, unmap, flush, err := osMap(f, size, writable)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:     data,
		size:     size,
		writable: writable,
		unmap:    unmap,
		flush:    flush,
	}, nil
}

// MapAnon creates a zero-filled, read-write anonymous mapping of size bytes.
// The memory lives outside the Go heap.
func MapAnon(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	data, unmap, err := osMapAnon(size)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:     data,
		size:     size,
		writable: true,
		unmap:    unmap,
	}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}

// Bytes returns the underlying byte slice.
// Warning: The slice is valid only until Close() is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Writable reports whether stores into Bytes() are permitted.
func (m *Mapping) Writable() bool {
	return m.writable
}

// Sync flushes modified pages of a file mapping to stable storage.
// It is a no-op for anonymous and read-only mappings.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.flush == nil || !m.writable {
		return nil
	}
	return m.flush(m.data)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osAdvise(m.data, pattern)
}
