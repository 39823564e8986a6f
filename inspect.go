package pagetree

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/pagetree/internal/cas"
	"github.com/hupe1980/pagetree/internal/leaf"
	"github.com/hupe1980/pagetree/internal/page"
)

// Stats describes how the pages of a store are used.
type Stats struct {
	PageSize  int
	PageCount uint64

	// AllocatedPages is the number of pages handed out, page 0 included.
	AllocatedPages uint64
	// ReachablePages counts allocated pages reachable from the master
	// record: the chain pages plus every tree's data page.
	ReachablePages uint64
	// ChainPages is the length of the master page chain.
	ChainPages int
	// LeakedPages lists allocated but unreachable pages, in order. They are
	// left behind by writers that lost a CAS race.
	LeakedPages []uint64

	Trees      int
	EmptyTrees int
	Entries    int
	Tombstones int
	// HeapUsed is the sum of used heap bytes over all data pages.
	HeapUsed int64
}

// Inspect walks the page chain, the registry and every tree and reports page
// usage. On a live store the result is a point in time view.
func (db *DB) Inspect() (Stats, error) {
	if db.closed.Load() {
		return Stats{}, ErrClosed
	}

	s := Stats{
		PageSize:       db.space.PageSize(),
		PageCount:      db.space.PageCount(),
		AllocatedPages: db.master.StoreTail(),
	}

	allocated := roaring64.New()
	allocated.AddRange(0, s.AllocatedPages)
	reachable := roaring64.New()

	chain, err := db.vs.Pages()
	if err != nil {
		return Stats{}, translateError(err)
	}
	s.ChainPages = len(chain)
	reachable.AddMany(chain)

	err = db.registry.Walk(func(name string, root cas.PageNum) error {
		s.Trees++
		n := root.Load()
		if n == 0 {
			s.EmptyTrees++
			return nil
		}
		if !allocated.Contains(n) {
			return page.Corruptf(n, "tree %q root beyond the allocated pages", name)
		}
		if !reachable.CheckedAdd(n) {
			return page.Corruptf(n, "tree %q root page is already in use", name)
		}

		l, err := leaf.Open(db.space, n)
		if err != nil {
			return fmt.Errorf("tree %q: %w", name, err)
		}
		ls, err := l.Stats()
		if err != nil {
			return fmt.Errorf("tree %q: %w", name, err)
		}
		s.Entries += ls.Entries
		s.Tombstones += ls.Tombstones
		s.HeapUsed += int64(ls.HeapUsed)
		return nil
	})
	if err != nil {
		return Stats{}, translateError(err)
	}

	s.ReachablePages = reachable.GetCardinality()
	s.LeakedPages = roaring64.AndNot(allocated, reachable).ToArray()
	return s, nil
}
