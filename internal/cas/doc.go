// Package cas provides compare-and-swap handles over fixed-width fields
// embedded in page bytes.
//
// A handle is bound to a page slice and a byte offset. Values are stored
// big-endian on the page whatever the host order, so the same bytes read the
// same way from every process that maps the page. Conversion to host order
// happens before the sync/atomic primitive is invoked, which gives every
// handle operation sequentially consistent ordering.
//
// Fields must be aligned to their own width (32-bit fields to 4 bytes,
// 64-bit fields to 8). A 16-bit field is updated through the aligned 32-bit
// word that contains it; CompareAndSwap on such a field only reports false
// when the field itself differs, changes to the neighbouring half are retried.
//
// CompareAndSwap returning false signals contention, never an error.
package cas
