package pagetree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hupe1980/pagetree/internal/cas"
	"github.com/hupe1980/pagetree/internal/leaf"
	"github.com/hupe1980/pagetree/value"
)

// Tree is a handle to one named tree. Handles are cheap views over the
// shared pages; any number of them may refer to the same tree.
//
// A tree's entries live in a single data page. When that page is full,
// writes that need new space fail with ErrPageFull.
type Tree struct {
	db   *DB
	name string
	root cas.PageNum
	leaf atomic.Pointer[leaf.Leaf]
	log  *Logger
}

func newTree(db *DB, name string, root cas.PageNum) *Tree {
	return &Tree{
		db:   db,
		name: name,
		root: root,
		log:  db.logger.WithTree(name),
	}
}

// Name returns the tree name.
func (t *Tree) Name() string { return t.name }

// RootPage returns the tree's data page number, or 0 while the tree is empty.
func (t *Tree) RootPage() uint64 { return t.root.Load() }

// Get returns the value stored under key.
func (t *Tree) Get(key value.Value) (value.Value, bool, error) {
	start := time.Now()
	v, ok, err := t.get(key)
	err = t.finish(err)
	t.db.metrics.RecordGet(time.Since(start), ok, err)
	return v, ok, err
}

func (t *Tree) get(key value.Value) (value.Value, bool, error) {
	if err := t.check(false, key); err != nil {
		return value.Value{}, false, err
	}
	l, err := t.open()
	if err != nil || l == nil {
		return value.Value{}, false, err
	}
	return l.Get(key)
}

// Put maps key to val and returns the previous value, if there was one.
func (t *Tree) Put(key, val value.Value) (value.Value, bool, error) {
	start := time.Now()
	prev, existed, err := t.put(key, val, leaf.Always)
	err = t.finish(err)
	t.db.metrics.RecordPut(time.Since(start), err)
	return prev, existed, err
}

// PutIfAbsent maps key to val only if key is absent. It returns the value
// already present when it declines, and whether val was inserted.
func (t *Tree) PutIfAbsent(key, val value.Value) (value.Value, bool, error) {
	start := time.Now()
	existing, existed, err := t.put(key, val, leaf.IfAbsent)
	err = t.finish(err)
	t.db.metrics.RecordPut(time.Since(start), err)
	if err != nil {
		return value.Value{}, false, err
	}
	return existing, !existed, nil
}

// Replace maps key to val only if key is present, and returns the value it
// replaced.
func (t *Tree) Replace(key, val value.Value) (value.Value, bool, error) {
	start := time.Now()
	prev, existed, err := t.put(key, val, leaf.IfExists)
	err = t.finish(err)
	t.db.metrics.RecordReplace(time.Since(start), existed && err == nil, err)
	return prev, existed, err
}

func (t *Tree) put(key, val value.Value, pred leaf.Predicate) (value.Value, bool, error) {
	if err := t.check(true, key, val); err != nil {
		return value.Value{}, false, err
	}
	l, err := t.open()
	if err != nil {
		return value.Value{}, false, err
	}
	if l == nil {
		if !pred(value.Value{}, false) {
			return value.Value{}, false, nil
		}
		var installed bool
		if l, installed, err = t.install(key, val); err != nil || installed {
			return value.Value{}, false, err
		}
	}
	return l.Put(key, val, pred)
}

// CompareAndReplace sets key to newVal only if its current value equals old.
func (t *Tree) CompareAndReplace(key, old, newVal value.Value) (bool, error) {
	start := time.Now()
	ok, err := t.compareAndReplace(key, old, newVal)
	err = t.finish(err)
	t.db.metrics.RecordReplace(time.Since(start), ok, err)
	return ok, err
}

func (t *Tree) compareAndReplace(key, old, newVal value.Value) (bool, error) {
	if err := t.check(true, key, old, newVal); err != nil {
		return false, err
	}
	l, err := t.open()
	if err != nil || l == nil {
		return false, err
	}
	return l.CompareAndReplace(key, old, newVal)
}

// Remove deletes key and returns the value it held.
func (t *Tree) Remove(key value.Value) (value.Value, bool, error) {
	start := time.Now()
	prev, ok, err := t.remove(key)
	err = t.finish(err)
	t.db.metrics.RecordRemove(time.Since(start), err)
	return prev, ok, err
}

func (t *Tree) remove(key value.Value) (value.Value, bool, error) {
	if err := t.check(true, key); err != nil {
		return value.Value{}, false, err
	}
	l, err := t.open()
	if err != nil || l == nil {
		return value.Value{}, false, err
	}
	return l.Remove(key)
}

// CompareAndRemove deletes key only if its current value equals old.
func (t *Tree) CompareAndRemove(key, old value.Value) (bool, error) {
	start := time.Now()
	ok, err := t.compareAndRemove(key, old)
	err = t.finish(err)
	t.db.metrics.RecordRemove(time.Since(start), err)
	return ok, err
}

func (t *Tree) compareAndRemove(key, old value.Value) (bool, error) {
	if err := t.check(true, key, old); err != nil {
		return false, err
	}
	l, err := t.open()
	if err != nil || l == nil {
		return false, err
	}
	return l.CompareAndRemove(key, old)
}

// Increment adds delta to the MutableLong under key and returns the result.
// An absent key starts at 0.
func (t *Tree) Increment(key value.Value, delta int64) (int64, error) {
	return t.Update(key, func(v int64) int64 { return v + delta })
}

// Update replaces the MutableLong under key with fn(current) and returns
// the new value. An absent key is inserted as MutableLong(fn(0)). fn may run
// more than once under contention and must not have side effects.
func (t *Tree) Update(key value.Value, fn func(int64) int64) (int64, error) {
	start := time.Now()
	n, err := t.update(key, fn)
	err = t.finish(err)
	t.db.metrics.RecordPut(time.Since(start), err)
	return n, err
}

func (t *Tree) update(key value.Value, fn func(int64) int64) (int64, error) {
	if err := t.check(true, key); err != nil {
		return 0, err
	}
	l, err := t.open()
	if err != nil {
		return 0, err
	}
	if l == nil {
		first := fn(0)
		var installed bool
		if l, installed, err = t.install(key, value.MutableLong(first)); err != nil {
			return 0, err
		}
		if installed {
			return first, nil
		}
	}
	return l.Update(key, fn)
}

// Walk calls fn for every live entry in key order. Entries written while
// the walk runs may or may not be visited.
func (t *Tree) Walk(fn func(key, val value.Value) error) error {
	if t.db.closed.Load() {
		return ErrClosed
	}
	l, err := t.open()
	if err != nil || l == nil {
		return translateError(err)
	}
	return translateError(l.Walk(func(e leaf.Entry) error {
		if e.Tombstone {
			return nil
		}
		return fn(e.Key, e.Value)
	}))
}

// Dump writes the tree's entries as a Graphviz digraph.
func (t *Tree) Dump(w io.Writer) error {
	if t.db.closed.Load() {
		return ErrClosed
	}
	l, err := t.open()
	if err != nil {
		return translateError(err)
	}
	if l == nil {
		_, err := fmt.Fprintf(w, "digraph %s {\n}\n", strconv.Quote(t.name))
		return err
	}
	return translateError(l.Dump(w, t.name))
}

// open returns the tree's leaf, or nil while the tree is empty.
func (t *Tree) open() (*leaf.Leaf, error) {
	if l := t.leaf.Load(); l != nil {
		return l, nil
	}
	n := t.root.Load()
	if n == 0 {
		return nil, nil
	}
	l, err := leaf.Open(t.db.space, n)
	if err != nil {
		return nil, err
	}
	t.leaf.Store(l)
	return l, nil
}

// install creates the tree's data page holding key and val, and links it as
// the root. An entry too large for an empty page is rejected before a page
// is allocated. If another writer linked a root first, the new page is leaked
// and the winner's leaf is returned with installed == false.
func (t *Tree) install(key, val value.Value) (*leaf.Leaf, bool, error) {
	if err := leaf.Fits(t.db.space, key, val); err != nil {
		return nil, false, err
	}
	n, err := t.db.master.AllocatePage()
	if err != nil {
		return nil, false, err
	}
	l, err := leaf.Create(t.db.space, n, key, val)
	if err != nil {
		return nil, false, err
	}
	if t.root.CompareAndSwap(0, n) {
		t.leaf.Store(l)
		t.log.LogRootInstalled(context.Background(), t.name, n)
		return l, true, nil
	}
	l, err = t.open()
	return l, false, err
}

func (t *Tree) check(write bool, vals ...value.Value) error {
	if t.db.closed.Load() {
		return ErrClosed
	}
	if write && t.db.readOnly {
		return ErrReadOnly
	}
	for _, v := range vals {
		if !v.IsValid() {
			return ErrInvalidValue
		}
	}
	return nil
}

func (t *Tree) finish(err error) error {
	if err == nil {
		return nil
	}
	err = translateError(err)
	if errors.Is(err, ErrCapacity) {
		t.db.metrics.RecordCapacityError()
		t.log.LogCapacity(context.Background(), t.name, err)
	}
	return err
}
