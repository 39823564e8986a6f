// Package vspace implements a heap spanning the chain of pages that starts at
// the master page.
//
// A virtual offset addresses a byte anywhere in the chain:
// offset / pageSize selects the page by its position in the chain and
// offset % pageSize is the position inside it.
package vspace

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/hupe1980/pagetree/internal/master"
	"github.com/hupe1980/pagetree/internal/page"
	"github.com/hupe1980/pagetree/paging"
)

// VSpace is a process-local view of a page chain. Several VSpace values may
// share one chain, in one process or across processes; they catch up with
// each other by following the on-page links.
type VSpace struct {
	space    paging.Space
	master   *master.Record
	pageSize int64
	// pages caches the chain prefix loaded so far. Copy on write.
	pages atomic.Pointer[[]*master.Record]
}

// New returns a virtual space rooted at the master record.
func New(space paging.Space, m *master.Record) *VSpace {
	v := &VSpace{
		space:    space,
		master:   m,
		pageSize: int64(space.PageSize()),
	}
	pages := []*master.Record{m}
	v.pages.Store(&pages)
	return v
}

// Master returns the master record.
func (v *VSpace) Master() *master.Record { return v.master }

// MaxAllocation returns the largest request Allocate can satisfy.
func (v *VSpace) MaxAllocation() int {
	l := page.NewLayout(v.space)
	return l.PageSize - l.ContinueHeap
}

// Allocate reserves size bytes aligned to align and returns the virtual
// offset. It extends the chain with a new page when the last one is full.
func (v *VSpace) Allocate(size, align int) (int64, error) {
	if size > v.MaxAllocation() {
		return 0, fmt.Errorf("%w: %d bytes", page.ErrTooLarge, size)
	}

	i := len(*v.pages.Load()) - 1
	for {
		rec, err := v.pageAt(i)
		if err != nil {
			return 0, err
		}

		if off, ok := rec.Allocate(size, align); ok {
			return int64(i)*v.pageSize + int64(off), nil
		}

		if rec.Next().Load() != 0 {
			i++
			continue
		}

		n, err := v.master.AllocatePage()
		if err != nil {
			return 0, err
		}
		if _, err := master.CreateContinuation(v.space, n); err != nil {
			return 0, err
		}
		// On a lost race page n stays allocated but unreachable; the next
		// round follows the winner's link.
		rec.Next().CompareAndSwap(0, n)
		i++
	}
}

// pageAt returns the i-th record of the chain, loading links on demand.
func (v *VSpace) pageAt(i int) (*master.Record, error) {
	for {
		ptr := v.pages.Load()
		pages := *ptr
		if i < len(pages) {
			return pages[i], nil
		}

		last := pages[len(pages)-1]
		next := last.Next().Load()
		if next == 0 {
			return nil, fmt.Errorf("vspace: chain ends at position %d, want %d", len(pages)-1, i)
		}
		if next <= last.PageNum() {
			return nil, page.Corruptf(last.PageNum(), "chain link %d does not move forward", next)
		}

		rec, err := master.Open(v.space, next)
		if err != nil {
			return nil, err
		}
		if rec.IsMaster() {
			return nil, page.Corruptf(next, "chain links back to a master record")
		}

		grown := append(slices.Clip(pages), rec)
		v.pages.CompareAndSwap(ptr, &grown)
	}
}

// Resolve maps a virtual offset to its page bytes and in-page offset.
func (v *VSpace) Resolve(off int64) ([]byte, int, error) {
	if off < 0 {
		return nil, 0, fmt.Errorf("vspace: negative offset %d", off)
	}
	rec, err := v.pageAt(int(off / v.pageSize))
	if err != nil {
		return nil, 0, err
	}
	return rec.Page(), int(off % v.pageSize), nil
}

// Seek positions c at the virtual offset.
func (v *VSpace) Seek(c *paging.Cursor, off int64) error {
	p, in, err := v.Resolve(off)
	if err != nil {
		return err
	}
	c.Switch(p)
	c.Seek(in)
	return c.Err()
}

// Pages loads the whole chain and returns its page numbers in order.
func (v *VSpace) Pages() ([]uint64, error) {
	for i := 0; ; i++ {
		pages := *v.pages.Load()
		if i >= len(pages) && pages[len(pages)-1].Next().Load() == 0 {
			out := make([]uint64, len(pages))
			for j, rec := range pages {
				out[j] = rec.PageNum()
			}
			return out, nil
		}
		if _, err := v.pageAt(i); err != nil {
			return nil, err
		}
	}
}
