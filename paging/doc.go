// Package paging provides the fixed-page address spaces that the store lives in.
//
// A Space is a contiguous run of equally sized pages, addressed by page
// number. Three providers exist:
//
//   - NewMemory: anonymous memory, private to the process
//   - OpenFile: one read-write shared file mapping
//   - OpenFiles: several files concatenated into one page-number space
//
// The codec choices (in-page reference width and page-number width) are fixed
// for the lifetime of an address space and travel with it.
//
// Cursor is a bounds-checked byte cursor over one page, used to read and
// write the write-once parts of the page layout.
package paging
