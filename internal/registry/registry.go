// Package registry maps tree names to root page handles.
//
// The registry is an append-only binary search tree stored in the virtual
// space and rooted at the master record's root entry. Entries are never
// removed or rebalanced, so the shape depends only on insertion order.
package registry

import (
	"cmp"
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/pagetree/internal/cas"
	"github.com/hupe1980/pagetree/internal/conv"
	"github.com/hupe1980/pagetree/internal/page"
	"github.com/hupe1980/pagetree/internal/vspace"
	"github.com/hupe1980/pagetree/paging"
)

// Registry is a view over the named tree registry.
type Registry struct {
	vs     *vspace.VSpace
	layout page.Layout
	root   cas.Int32
}

// New returns the registry rooted at the virtual space's master record.
func New(space paging.Space, vs *vspace.VSpace) *Registry {
	return &Registry{
		vs:     vs,
		layout: page.NewLayout(space),
		root:   vs.Master().RootEntry(),
	}
}

type entry struct {
	page []byte
	off  int
}

func (r *Registry) entry(ref int32) (entry, error) {
	p, off, err := r.vs.Resolve(int64(ref))
	if err != nil {
		return entry{}, fmt.Errorf("registry: entry %d: %w", ref, err)
	}
	if off+r.layout.RegName > len(p) {
		return entry{}, page.Corruptf(0, "registry entry %d crosses a page", ref)
	}
	return entry{page: p, off: off}, nil
}

func (r *Registry) lesser(e entry) cas.Int32 {
	return cas.NewInt32(e.page, e.off+r.layout.RegLesser)
}

func (r *Registry) greater(e entry) cas.Int32 {
	return cas.NewInt32(e.page, e.off+r.layout.RegGreater)
}

// treeRoot returns the root page handle of an entry.
func (r *Registry) treeRoot(e entry) cas.PageNum {
	return r.layout.PageNumAt(e.page, e.off+r.layout.RegTreeRoot)
}

// name returns the stored name bytes without copying.
func (r *Registry) name(e entry, ref int32) ([]byte, error) {
	c := paging.NewCursor(e.page)
	c.Seek(e.off + r.layout.RegName)
	b := c.LenBytes()
	if err := c.Err(); err != nil {
		return nil, page.Corruptf(0, "registry entry %d name: %v", ref, err)
	}
	return b, nil
}

// compare orders name against the entry's stored name.
func (r *Registry) compare(name string, e entry, ref int32) (int, error) {
	stored, err := r.name(e, ref)
	if err != nil {
		return 0, err
	}
	n := min(len(name), len(stored))
	for i := 0; i < n; i++ {
		if name[i] != stored[i] {
			return cmp.Compare(name[i], stored[i]), nil
		}
	}
	return cmp.Compare(len(name), len(stored)), nil
}

// search walks from the root. It returns the matching entry, or the null
// link where name would be attached.
func (r *Registry) search(name string) (cas.PageNum, cas.Int32, bool, error) {
	link := r.root
	for {
		ref := link.Load()
		if ref == 0 {
			return cas.PageNum{}, link, false, nil
		}
		e, err := r.entry(ref)
		if err != nil {
			return cas.PageNum{}, cas.Int32{}, false, err
		}
		c, err := r.compare(name, e, ref)
		if err != nil {
			return cas.PageNum{}, cas.Int32{}, false, err
		}
		switch {
		case c == 0:
			return r.treeRoot(e), cas.Int32{}, true, nil
		case c < 0:
			link = r.lesser(e)
		default:
			link = r.greater(e)
		}
	}
}

// Find returns the root handle of the named tree.
func (r *Registry) Find(name string) (cas.PageNum, bool, error) {
	h, _, ok, err := r.search(name)
	return h, ok, err
}

// FindOrCreate returns the root handle of the named tree, linking a new
// entry if none exists. The returned handle reads 0 until a root page is
// installed. Concurrent callers with the same name get the same handle; the
// boolean reports whether this call linked the entry.
func (r *Registry) FindOrCreate(name string) (cas.PageNum, bool, error) {
	var created int32
	for {
		h, link, ok, err := r.search(name)
		if err != nil {
			return cas.PageNum{}, false, err
		}
		if ok {
			// A speculative entry, if any, is leaked.
			return h, false, nil
		}

		if created == 0 {
			created, err = r.write(name)
			if err != nil {
				return cas.PageNum{}, false, err
			}
		}

		if link.CompareAndSwap(0, created) {
			e, err := r.entry(created)
			if err != nil {
				return cas.PageNum{}, false, err
			}
			return r.treeRoot(e), true, nil
		}
	}
}

// write allocates and fills an unlinked entry.
func (r *Registry) write(name string) (int32, error) {
	size := r.layout.RegName + uvarintLen(len(name)) + len(name)

	off, err := r.vs.Allocate(size, r.layout.RegAlign)
	if err != nil {
		return 0, fmt.Errorf("registry: allocate entry for %q: %w", name, err)
	}
	ref, err := conv.Int64ToInt32(off)
	if err != nil {
		return 0, fmt.Errorf("registry: entry offset: %w: %w", page.ErrNoSpace, err)
	}

	e, err := r.entry(ref)
	if err != nil {
		return 0, err
	}
	r.lesser(e).Store(0)
	r.greater(e).Store(0)
	r.treeRoot(e).Store(0)

	c := paging.NewCursor(e.page)
	c.Seek(e.off + r.layout.RegName)
	c.PutLenString(name)
	if err := c.Err(); err != nil {
		return 0, fmt.Errorf("registry: write entry: %w", err)
	}
	return ref, nil
}

// Walk visits every entry in name order. It is a point-in-time traversal:
// entries linked while it runs may or may not be visited.
func (r *Registry) Walk(fn func(name string, root cas.PageNum) error) error {
	type frame struct {
		e   entry
		ref int32
	}
	var stack []frame

	ref := r.root.Load()
	for ref != 0 || len(stack) > 0 {
		for ref != 0 {
			e, err := r.entry(ref)
			if err != nil {
				return err
			}
			stack = append(stack, frame{e, ref})
			ref = r.lesser(e).Load()
		}

		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		name, err := r.name(top.e, top.ref)
		if err != nil {
			return err
		}
		if err := fn(string(name), r.treeRoot(top.e)); err != nil {
			return err
		}
		ref = r.greater(top.e).Load()
	}
	return nil
}

// Names returns all tree names in order.
func (r *Registry) Names() ([]string, error) {
	var names []string
	err := r.Walk(func(name string, _ cas.PageNum) error {
		names = append(names, name)
		return nil
	})
	return names, err
}

func uvarintLen(n int) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], uint64(n))
}
