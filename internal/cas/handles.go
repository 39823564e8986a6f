package cas

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/pagetree/internal/conv"
)

// Int32 is a handle to a signed 32-bit field.
type Int32 struct {
	p *uint32
}

// NewInt32 binds a handle to the 4 bytes at page[off:].
func NewInt32(page []byte, off int) Int32 {
	return Int32{p: word32(page, off)}
}

// Load atomically reads the field.
func (h Int32) Load() int32 { return int32(be32(atomic.LoadUint32(h.p))) }

// Store atomically writes the field.
func (h Int32) Store(v int32) { atomic.StoreUint32(h.p, be32(uint32(v))) }

// CompareAndSwap atomically replaces old with new.
func (h Int32) CompareAndSwap(old, new int32) bool {
	return atomic.CompareAndSwapUint32(h.p, be32(uint32(old)), be32(uint32(new)))
}

// Int64 is a handle to a signed 64-bit field.
type Int64 struct {
	p *uint64
}

// NewInt64 binds a handle to the 8 bytes at page[off:].
func NewInt64(page []byte, off int) Int64 {
	return Int64{p: word64(page, off)}
}

// Load atomically reads the field.
func (h Int64) Load() int64 { return int64(be64(atomic.LoadUint64(h.p))) }

// Store atomically writes the field.
func (h Int64) Store(v int64) { atomic.StoreUint64(h.p, be64(uint64(v))) }

// CompareAndSwap atomically replaces old with new.
func (h Int64) CompareAndSwap(old, new int64) bool {
	return atomic.CompareAndSwapUint64(h.p, be64(uint64(old)), be64(uint64(new)))
}

// Add atomically adds delta and returns the new value.
func (h Int64) Add(delta int64) int64 {
	for {
		cur := h.Load()
		if h.CompareAndSwap(cur, cur+delta) {
			return cur + delta
		}
	}
}

// Uint16 is a handle to an unsigned 16-bit field, updated through its
// containing 32-bit word.
type Uint16 struct {
	w     *uint32
	shift uint
}

// NewUint16 binds a handle to the 2 bytes at page[off:]. off must be even.
func NewUint16(page []byte, off int) Uint16 {
	if off&1 != 0 {
		panic(fmt.Sprintf("cas: unaligned 16-bit field at offset %d", off))
	}
	// In the big-endian view of the word, the first half holds the high bits.
	shift := uint(16)
	if off&3 != 0 {
		shift = 0
	}
	return Uint16{w: word32(page, off&^3), shift: shift}
}

// Load atomically reads the field.
func (h Uint16) Load() uint16 {
	return uint16(be32(atomic.LoadUint32(h.w)) >> h.shift)
}

// Store atomically writes the field, leaving the neighbouring half intact.
func (h Uint16) Store(v uint16) {
	for {
		raw := atomic.LoadUint32(h.w)
		if atomic.CompareAndSwapUint32(h.w, raw, h.merge(raw, v)) {
			return
		}
	}
}

// CompareAndSwap atomically replaces old with new. A concurrent change to
// the other half of the word is retried, not reported.
func (h Uint16) CompareAndSwap(old, new uint16) bool {
	for {
		raw := atomic.LoadUint32(h.w)
		if uint16(be32(raw)>>h.shift) != old {
			return false
		}
		if atomic.CompareAndSwapUint32(h.w, raw, h.merge(raw, new)) {
			return true
		}
	}
}

func (h Uint16) merge(raw uint32, v uint16) uint32 {
	w := be32(raw)
	w = w&^(0xFFFF<<h.shift) | uint32(v)<<h.shift
	return be32(w)
}

// Ref is a handle to an in-page reference, 2 or 4 bytes wide.
type Ref struct {
	narrow Uint16
	wide   *uint32
}

// NewRef binds a handle to a reference of the given byte width (2 or 4).
func NewRef(page []byte, off, width int) Ref {
	switch width {
	case 2:
		return Ref{narrow: NewUint16(page, off)}
	case 4:
		return Ref{wide: word32(page, off)}
	default:
		panic(fmt.Sprintf("cas: invalid ref width %d", width))
	}
}

// Load atomically reads the reference.
func (h Ref) Load() uint32 {
	if h.wide != nil {
		return be32(atomic.LoadUint32(h.wide))
	}
	return uint32(h.narrow.Load())
}

// Width returns the field width in bytes.
func (h Ref) Width() int {
	if h.wide != nil {
		return 4
	}
	return 2
}

// Store atomically writes the reference. It panics if v does not fit the
// field; callers narrow with conv.Ref first.
func (h Ref) Store(v uint32) {
	if h.wide != nil {
		atomic.StoreUint32(h.wide, be32(v))
		return
	}
	h.narrow.Store(narrow16(v))
}

// CompareAndSwap atomically replaces old with new. A narrow field never
// holds an old value above 16 bits, so such a swap fails.
func (h Ref) CompareAndSwap(old, new uint32) bool {
	if h.wide != nil {
		return atomic.CompareAndSwapUint32(h.wide, be32(old), be32(new))
	}
	if old > 0xFFFF {
		return false
	}
	return h.narrow.CompareAndSwap(uint16(old), narrow16(new))
}

func narrow16(v uint32) uint16 {
	if _, err := conv.Ref(int(v), 2); err != nil {
		panic(fmt.Sprintf("cas: %v", err))
	}
	return uint16(v)
}

// PageNum is a handle to a page number field, 4 or 8 bytes wide.
type PageNum struct {
	p32 *uint32
	p64 *uint64
}

// NewPageNum binds a handle to a page number of the given byte width (4 or 8).
func NewPageNum(page []byte, off, width int) PageNum {
	switch width {
	case 4:
		return PageNum{p32: word32(page, off)}
	case 8:
		return PageNum{p64: word64(page, off)}
	default:
		panic(fmt.Sprintf("cas: invalid page number width %d", width))
	}
}

// Load atomically reads the page number.
func (h PageNum) Load() uint64 {
	if h.p64 != nil {
		return be64(atomic.LoadUint64(h.p64))
	}
	return uint64(be32(atomic.LoadUint32(h.p32)))
}

// Store atomically writes the page number.
func (h PageNum) Store(v uint64) {
	if h.p64 != nil {
		atomic.StoreUint64(h.p64, be64(v))
		return
	}
	atomic.StoreUint32(h.p32, be32(narrow32(v)))
}

// CompareAndSwap atomically replaces old with new.
func (h PageNum) CompareAndSwap(old, new uint64) bool {
	if h.p64 != nil {
		return atomic.CompareAndSwapUint64(h.p64, be64(old), be64(new))
	}
	if old > 0xFFFFFFFF {
		return false
	}
	return atomic.CompareAndSwapUint32(h.p32, be32(uint32(old)), be32(narrow32(new)))
}

func narrow32(v uint64) uint32 {
	if _, err := conv.PageNum(v, 4); err != nil {
		panic(fmt.Sprintf("cas: %v", err))
	}
	return uint32(v)
}

// Valid reports whether the handle is bound to a field.
func (h PageNum) Valid() bool { return h.p32 != nil || h.p64 != nil }
