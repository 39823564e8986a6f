// Package leaf implements a key/value store inside one page.
//
// The page holds a binary search tree of entries plus a private append-only
// heap. Every entry is written in full before a single CAS links it into a
// null child slot, and values are swapped by CAS on the entry's value
// reference, so readers never need a lock. Removing a key sets the value
// reference to 0 (a tombstone); nothing is ever reclaimed.
//
// The first entry sits at the start of the heap and is the tree root. It is
// written together with the page header, so a leaf page is never empty.
package leaf

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pagetree/internal/cas"
	"github.com/hupe1980/pagetree/internal/page"
	"github.com/hupe1980/pagetree/paging"
	"github.com/hupe1980/pagetree/value"
)

// ErrNotMutable is returned by Update when the stored value is not a MutableLong.
var ErrNotMutable = errors.New("leaf: value is not a mutable long")

// mutableSlack is the worst-case padding that puts a MutableLong payload on
// an 8-byte boundary.
const mutableSlack = 7

// Leaf is an open leaf page.
type Leaf struct {
	layout page.Layout
	num    uint64
	data   []byte
	heap   page.Heap
}

// Open opens the existing leaf page n.
func Open(space paging.Space, n uint64) (*Leaf, error) {
	p, err := space.Page(n)
	if err != nil {
		return nil, err
	}
	l := newLeaf(space, n, p)

	switch k := page.KindOf(p); k {
	case page.KindLeafNode:
	case page.KindInnerNode:
		return nil, fmt.Errorf("page %d: %w: %s", n, page.ErrUnsupported, k)
	default:
		return nil, page.Corruptf(n, "unexpected kind %s for a leaf", k)
	}

	if minTail := l.layout.LeafHeap + l.layout.EntryKey; !l.heap.Valid() || l.heap.Tail() <= minTail {
		return nil, page.Corruptf(n, "leaf tail %d outside (%d, %d]", l.heap.Tail(), minTail, l.layout.PageSize)
	}
	return l, nil
}

// Fits reports ErrPageFull when a fresh leaf page of space cannot hold the
// entry key/val, so callers can reject it before allocating a page.
func Fits(space paging.Space, key, val value.Value) error {
	lay := page.NewLayout(space)
	if span := entrySpan(lay, key, val); lay.LeafHeap+span > lay.PageSize {
		return fmt.Errorf("%w: entry of %d bytes", page.ErrPageFull, span)
	}
	return nil
}

// Create formats the freshly allocated page n as a leaf holding one entry.
// The page is not reachable until the caller links it.
func Create(space paging.Space, n uint64, key, val value.Value) (*Leaf, error) {
	if err := Fits(space, key, val); err != nil {
		return nil, err
	}
	p, err := space.Page(n)
	if err != nil {
		return nil, err
	}
	if k := page.KindOf(p); k != page.KindNew {
		return nil, page.Corruptf(n, "allocated page already has kind %s", k)
	}
	l := newLeaf(space, n, p)

	tail, err := l.layout.RefValue(l.layout.LeafHeap + entrySpan(l.layout, key, val))
	if err != nil {
		return nil, err
	}
	l.layout.Ref(p, l.layout.LeafLastValue).Store(0)
	if err := l.writeEntry(l.layout.LeafHeap, key, val); err != nil {
		return nil, err
	}
	l.layout.Ref(p, l.layout.LeafTail).Store(tail)
	page.Magic(p).Store(uint16(page.KindLeafNode))

	return l, nil
}

func newLeaf(space paging.Space, n uint64, p []byte) *Leaf {
	lay := page.NewLayout(space)
	return &Leaf{
		layout: lay,
		num:    n,
		data:   p,
		heap:   page.NewHeap(lay.Ref(p, lay.LeafTail), lay.LeafHeap, lay.PageSize),
	}
}

// PageNum returns the page number.
func (l *Leaf) PageNum() uint64 { return l.num }

// Heap returns the page heap.
func (l *Leaf) Heap() page.Heap { return l.heap }

func (l *Leaf) corrupt(format string, args ...any) error {
	return page.Corruptf(l.num, format, args...)
}

// Entry field handles.

func (l *Leaf) lesser(e int) cas.Ref  { return l.layout.Ref(l.data, e+l.layout.EntryLesser) }
func (l *Leaf) greater(e int) cas.Ref { return l.layout.Ref(l.data, e+l.layout.EntryGreater) }
func (l *Leaf) valueRef(e int) cas.Ref {
	return l.layout.Ref(l.data, e+l.layout.EntryValue)
}

// checkEntry validates a link read from the page before it is followed.
// Entries are 4-byte aligned and hold at least one key byte below the tail.
func (l *Leaf) checkEntry(ref int) error {
	if ref < l.layout.LeafHeap || ref+l.layout.EntryKey >= l.heap.Tail() {
		return l.corrupt("entry ref %d outside heap", ref)
	}
	if ref%4 != 0 {
		return l.corrupt("entry ref %d unaligned", ref)
	}
	return nil
}

func (l *Leaf) checkValue(ref int) error {
	if ref < l.layout.LeafHeap || ref >= l.heap.Tail() {
		return l.corrupt("value ref %d outside heap", ref)
	}
	return nil
}

// search walks the tree for key. On a match it returns the entry offset;
// otherwise it returns the null child link where key belongs.
func (l *Leaf) search(key value.Value) (int, cas.Ref, error) {
	e := l.layout.LeafHeap
	for {
		c, err := value.Compare(l.data[e+l.layout.EntryKey:], key)
		if err != nil {
			return 0, cas.Ref{}, l.corrupt("key at %d: %v", e, err)
		}
		if c == 0 {
			return e, cas.Ref{}, nil
		}

		link := l.greater(e)
		if c > 0 {
			link = l.lesser(e)
		}
		next := int(link.Load())
		if next == 0 {
			return 0, link, nil
		}
		if err := l.checkEntry(next); err != nil {
			return 0, cas.Ref{}, err
		}
		e = next
	}
}

// readValue decodes the blob at ref. MutableLong payloads are read atomically.
func (l *Leaf) readValue(ref int) (value.Value, error) {
	if err := l.checkValue(ref); err != nil {
		return value.Value{}, err
	}
	kind, err := value.KindOf(l.data[ref:])
	if err != nil {
		return value.Value{}, l.corrupt("value at %d: %v", ref, err)
	}
	if kind == value.KindMutableLong {
		if ref+value.MutableLongSize > len(l.data) {
			return value.Value{}, l.corrupt("mutable long at %d truncated", ref)
		}
		if (ref+1)%8 != 0 {
			return value.Value{}, l.corrupt("mutable long at %d unaligned", ref)
		}
		return value.MutableLong(l.mutable(ref).Load()), nil
	}
	v, _, err := value.Decode(l.data[ref:])
	if err != nil {
		return value.Value{}, l.corrupt("value at %d: %v", ref, err)
	}
	return v, nil
}

// mutable returns the payload handle of a MutableLong blob at ref.
func (l *Leaf) mutable(ref int) cas.Int64 {
	return cas.NewInt64(l.data, ref+1)
}

// entrySpan is the allocation size for an entry with its value.
func entrySpan(lay page.Layout, key, val value.Value) int {
	n := lay.EntryKey + value.Size(key) + value.Size(val)
	if val.Kind() == value.KindMutableLong {
		n += mutableSlack
	}
	return n
}

// valueOffset places the value of an entry at e so a MutableLong payload is
// 8-byte aligned.
func (l *Leaf) valueOffset(e int, key, val value.Value) int {
	v := e + l.layout.EntryKey + value.Size(key)
	if val.Kind() == value.KindMutableLong {
		v = page.AlignUp(v+1, 8) - 1
	}
	return v
}

// writeEntry fills an unlinked entry at e with its value pre-linked.
func (l *Leaf) writeEntry(e int, key, val value.Value) error {
	l.lesser(e).Store(0)
	l.greater(e).Store(0)

	c := paging.NewCursor(l.data)
	c.Seek(e + l.layout.EntryKey)
	buf, err := value.Append(nil, key)
	if err != nil {
		return err
	}
	c.PutBytes(buf)

	v := l.valueOffset(e, key, val)
	if err := l.writeValueAt(c, v, val); err != nil {
		return err
	}
	ref, err := l.ref(v)
	if err != nil {
		return err
	}
	if err := c.Err(); err != nil {
		return l.corrupt("write entry: %v", err)
	}
	l.valueRef(e).Store(ref)
	return nil
}

func (l *Leaf) writeValueAt(c *paging.Cursor, off int, val value.Value) error {
	buf, err := value.Append(nil, val)
	if err != nil {
		return err
	}
	c.Seek(off)
	c.PutBytes(buf)
	if err := c.Err(); err != nil {
		return l.corrupt("write value: %v", err)
	}
	return nil
}

// allocEntry reserves and writes a new unlinked entry and returns its ref.
func (l *Leaf) allocEntry(key, val value.Value) (uint32, error) {
	e, ok := l.heap.Allocate(entrySpan(l.layout, key, val), 4, 0)
	if !ok {
		return 0, page.ErrPageFull
	}
	if err := l.writeEntry(e, key, val); err != nil {
		return 0, err
	}
	return l.ref(e)
}

// allocValue reserves and writes a standalone value blob and returns its ref.
func (l *Leaf) allocValue(val value.Value) (uint32, error) {
	var (
		off int
		ok  bool
	)
	if val.Kind() == value.KindMutableLong {
		off, ok = l.heap.Allocate(value.MutableLongSize, 8, 1)
	} else {
		off, ok = l.heap.Allocate(value.Size(val), 1, 0)
	}
	if !ok {
		return 0, page.ErrPageFull
	}
	if err := l.writeValueAt(paging.NewCursor(l.data), off, val); err != nil {
		return 0, err
	}
	return l.ref(off)
}

func (l *Leaf) ref(off int) (uint32, error) {
	r, err := l.layout.RefValue(off)
	if err != nil {
		return 0, l.corrupt("ref: %v", err)
	}
	return r, nil
}
