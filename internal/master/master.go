// Package master bootstraps and opens the record at the start of every page
// in a virtual-space chain.
//
// Page 0 holds the MasterRecord: page-local heap tail, chain link, the
// global page allocator cursor (store tail) and the registry root. Every
// later page in the chain holds a continuation record with only the heap
// tail and the chain link.
package master

import (
	"fmt"

	"github.com/hupe1980/pagetree/internal/cas"
	"github.com/hupe1980/pagetree/internal/conv"
	"github.com/hupe1980/pagetree/internal/page"
	"github.com/hupe1980/pagetree/paging"
)

// Record is an open master or continuation record.
type Record struct {
	layout page.Layout
	num    uint64
	data   []byte
	kind   page.Kind
	heap   page.Heap
	next   cas.PageNum

	// Master only.
	storeTail cas.PageNum
	root      cas.Int32
	pageCount uint64
}

// ConcurrentGetOrCreate opens the master record at page 0, creating it if the
// space is blank. Concurrent callers, including other processes sharing the
// mapping, agree on exactly one creator. The second result reports whether
// this call created the record.
func ConcurrentGetOrCreate(space paging.Space) (*Record, bool, error) {
	p, err := space.Page(0)
	if err != nil {
		return nil, false, err
	}
	l := page.NewLayout(space)

	if page.KindOf(p) != page.KindNew {
		r, err := Open(space, 0)
		return r, false, err
	}

	created := false
	cs := cas.NewCriticalSection(cas.NewInt32(p, l.MasterLock), 0)
	err = cs.Do(func() error {
		if page.KindOf(p) != page.KindNew {
			return nil
		}
		writeMaster(l, p)
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	r, err := Open(space, 0)
	return r, created, err
}

// GetOrCreate is the single-opener variant of ConcurrentGetOrCreate: the
// first call on a blank space writes the record without taking the lock.
func GetOrCreate(space paging.Space) (*Record, bool, error) {
	p, err := space.Page(0)
	if err != nil {
		return nil, false, err
	}

	created := false
	if page.KindOf(p) == page.KindNew {
		writeMaster(page.NewLayout(space), p)
		created = true
	}

	r, err := Open(space, 0)
	return r, created, err
}

// CreateContinuation writes a blank continuation record on the freshly
// allocated page n and opens it. The record is not yet linked into a chain.
func CreateContinuation(space paging.Space, n uint64) (*Record, error) {
	p, err := space.Page(n)
	if err != nil {
		return nil, err
	}
	if k := page.KindOf(p); k != page.KindNew {
		return nil, page.Corruptf(n, "allocated page already has kind %s", k)
	}

	l := page.NewLayout(space)
	l.Ref(p, l.PageTail).Store(uint32(l.ContinueHeap))
	l.PageNumAt(p, l.NextPage).Store(0)
	page.Magic(p).Store(uint16(page.KindMasterContinue))

	return Open(space, n)
}

// writeMaster lays out a blank master record. The magic goes last so no
// reader sees a partial record.
func writeMaster(l page.Layout, p []byte) {
	l.Ref(p, l.PageTail).Store(uint32(l.MasterHeap))
	l.PageNumAt(p, l.NextPage).Store(0)
	l.PageNumAt(p, l.StoreTail).Store(1)
	cas.NewInt32(p, l.RootEntry).Store(0)
	page.Magic(p).Store(uint16(page.KindMaster))
}

// Open opens the existing record on page n and validates it.
func Open(space paging.Space, n uint64) (*Record, error) {
	p, err := space.Page(n)
	if err != nil {
		return nil, err
	}
	l := page.NewLayout(space)

	r := &Record{
		layout: l,
		num:    n,
		data:   p,
		kind:   page.KindOf(p),
		next:   l.PageNumAt(p, l.NextPage),
	}

	switch r.kind {
	case page.KindMaster:
		if n != 0 {
			return nil, page.Corruptf(n, "master record outside page 0")
		}
		r.heap = page.NewHeap(l.Ref(p, l.PageTail), l.MasterHeap, l.MasterLock)
		r.storeTail = l.PageNumAt(p, l.StoreTail)
		r.root = cas.NewInt32(p, l.RootEntry)
		r.pageCount = space.PageCount()

		if st := r.storeTail.Load(); st < 1 || st > r.pageCount {
			return nil, page.Corruptf(n, "store tail %d outside [1, %d]", st, r.pageCount)
		}
	case page.KindMasterContinue:
		r.heap = page.NewHeap(l.Ref(p, l.PageTail), l.ContinueHeap, l.PageSize)
	case page.KindNew:
		return nil, page.Corruptf(n, "page not initialized")
	case page.KindInnerNode:
		return nil, fmt.Errorf("page %d: %w: %s", n, page.ErrUnsupported, r.kind)
	default:
		return nil, page.Corruptf(n, "unexpected kind %s for a master record", r.kind)
	}

	if !r.heap.Valid() {
		return nil, page.Corruptf(n, "page tail %d outside [%d, %d]", r.heap.Tail(), r.heap.Start(), r.heap.Limit())
	}
	if next := r.next.Load(); next != 0 && next >= space.PageCount() {
		return nil, page.Corruptf(n, "next page %d beyond space", next)
	}

	return r, nil
}

// PageNum returns the page number of the record.
func (r *Record) PageNum() uint64 { return r.num }

// Page returns the page bytes.
func (r *Record) Page() []byte { return r.data }

// Kind returns the record kind.
func (r *Record) Kind() page.Kind { return r.kind }

// Heap returns the page-local heap.
func (r *Record) Heap() page.Heap { return r.heap }

// Allocate reserves size bytes aligned to align in the page-local heap.
func (r *Record) Allocate(size, align int) (int, bool) {
	return r.heap.Allocate(size, align, 0)
}

// Next returns the chain link to the following page; 0 means none.
func (r *Record) Next() cas.PageNum { return r.next }

// IsMaster reports whether this is the page 0 record.
func (r *Record) IsMaster() bool { return r.kind == page.KindMaster }

// RootEntry returns the registry root handle. Master only.
func (r *Record) RootEntry() cas.Int32 { return r.root }

// StoreTail returns the number of pages handed out so far, page 0 included.
// Master only.
func (r *Record) StoreTail() uint64 { return r.storeTail.Load() }

// AllocatePage hands out the next unused page number. Master only.
func (r *Record) AllocatePage() (uint64, error) {
	if !r.storeTail.Valid() {
		return 0, fmt.Errorf("page %d: allocate page on a continuation record", r.num)
	}
	for {
		cur := r.storeTail.Load()
		if cur >= r.pageCount {
			return 0, page.ErrNoSpace
		}
		next, err := conv.PageNum(cur+1, r.layout.PageNum)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", page.ErrNoSpace, err)
		}
		if r.storeTail.CompareAndSwap(cur, next) {
			return cur, nil
		}
	}
}
