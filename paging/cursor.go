package paging

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfBounds is recorded by a Cursor that reads or writes past its page.
var ErrOutOfBounds = errors.New("paging: cursor out of bounds")

// Cursor reads and writes big-endian primitives within one page.
//
// Errors are sticky: the first out-of-bounds access is recorded, every later
// read returns zero values and writes are dropped. Check Err once at the end
// of a sequence.
//
// Cursor writes are plain stores. Use them only for bytes that are not yet
// reachable by other goroutines; shared fields go through the cas handles.
type Cursor struct {
	page []byte
	pos  int
	err  error
}

// NewCursor returns a cursor positioned at the start of page.
func NewCursor(page []byte) *Cursor {
	return &Cursor{page: page}
}

// Switch rebinds the cursor to another page at offset 0 and clears the error.
func (c *Cursor) Switch(page []byte) {
	c.page = page
	c.pos = 0
	c.err = nil
}

// Seek moves to an absolute in-page offset.
func (c *Cursor) Seek(pos int) {
	if pos < 0 || pos > len(c.page) {
		c.fail(pos, 0)
		return
	}
	c.pos = pos
}

// Skip advances by n bytes.
func (c *Cursor) Skip(n int) {
	if c.check(n) {
		c.pos += n
	}
}

// Pos returns the current offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of bytes left on the page.
func (c *Cursor) Remaining() int { return len(c.page) - c.pos }

// Page returns the page the cursor is bound to.
func (c *Cursor) Page() []byte { return c.page }

// Err returns the first error recorded since the last Switch.
func (c *Cursor) Err() error { return c.err }

func (c *Cursor) check(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.pos+n > len(c.page) {
		c.fail(c.pos, n)
		return false
	}
	return true
}

func (c *Cursor) fail(pos, n int) {
	if c.err == nil {
		c.err = fmt.Errorf("%w: %d+%d beyond %d", ErrOutOfBounds, pos, n, len(c.page))
	}
}

// Uint8 reads one byte.
func (c *Cursor) Uint8() byte {
	if !c.check(1) {
		return 0
	}
	b := c.page[c.pos]
	c.pos++
	return b
}

// PutUint8 writes one byte.
func (c *Cursor) PutUint8(b byte) {
	if !c.check(1) {
		return
	}
	c.page[c.pos] = b
	c.pos++
}

// Uint16 reads a big-endian uint16.
func (c *Cursor) Uint16() uint16 {
	if !c.check(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(c.page[c.pos:])
	c.pos += 2
	return v
}

// PutUint16 writes a big-endian uint16.
func (c *Cursor) PutUint16(v uint16) {
	if !c.check(2) {
		return
	}
	binary.BigEndian.PutUint16(c.page[c.pos:], v)
	c.pos += 2
}

// Uint32 reads a big-endian uint32.
func (c *Cursor) Uint32() uint32 {
	if !c.check(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(c.page[c.pos:])
	c.pos += 4
	return v
}

// PutUint32 writes a big-endian uint32.
func (c *Cursor) PutUint32(v uint32) {
	if !c.check(4) {
		return
	}
	binary.BigEndian.PutUint32(c.page[c.pos:], v)
	c.pos += 4
}

// Uint64 reads a big-endian uint64.
func (c *Cursor) Uint64() uint64 {
	if !c.check(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(c.page[c.pos:])
	c.pos += 8
	return v
}

// PutUint64 writes a big-endian uint64.
func (c *Cursor) PutUint64(v uint64) {
	if !c.check(8) {
		return
	}
	binary.BigEndian.PutUint64(c.page[c.pos:], v)
	c.pos += 8
}

// Uvarint reads an unsigned varint.
func (c *Cursor) Uvarint() uint64 {
	if c.err != nil {
		return 0
	}
	v, n := binary.Uvarint(c.page[c.pos:])
	if n <= 0 {
		c.fail(c.pos, binary.MaxVarintLen64)
		return 0
	}
	c.pos += n
	return v
}

// PutUvarint writes an unsigned varint.
func (c *Cursor) PutUvarint(v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	c.PutBytes(buf[:n])
}

// Varint reads a zig-zag signed varint.
func (c *Cursor) Varint() int64 {
	if c.err != nil {
		return 0
	}
	v, n := binary.Varint(c.page[c.pos:])
	if n <= 0 {
		c.fail(c.pos, binary.MaxVarintLen64)
		return 0
	}
	c.pos += n
	return v
}

// PutVarint writes a zig-zag signed varint.
func (c *Cursor) PutVarint(v int64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], v)
	c.PutBytes(buf[:n])
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) []byte {
	if !c.check(n) {
		return nil
	}
	b := c.page[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b
}

// PutBytes copies p to the page.
func (c *Cursor) PutBytes(p []byte) {
	if !c.check(len(p)) {
		return
	}
	c.pos += copy(c.page[c.pos:], p)
}

// LenBytes reads a uvarint length followed by that many bytes, without copying.
func (c *Cursor) LenBytes() []byte {
	n := c.Uvarint()
	if c.err != nil {
		return nil
	}
	if n > uint64(c.Remaining()) {
		c.fail(c.pos, c.Remaining()+1)
		return nil
	}
	return c.Bytes(int(n))
}

// PutLenBytes writes a uvarint length followed by p.
func (c *Cursor) PutLenBytes(p []byte) {
	c.PutUvarint(uint64(len(p)))
	c.PutBytes(p)
}

// LenString reads a length-prefixed UTF-8 string.
func (c *Cursor) LenString() string {
	return string(c.LenBytes())
}

// PutLenString writes a length-prefixed UTF-8 string.
func (c *Cursor) PutLenString(s string) {
	c.PutUvarint(uint64(len(s)))
	if !c.check(len(s)) {
		return
	}
	c.pos += copy(c.page[c.pos:], s)
}
