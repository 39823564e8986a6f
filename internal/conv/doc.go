// Package conv narrows offsets and page numbers to the widths of their
// on-page fields and reports ErrOverflow instead of truncating.
package conv
