package leaf

import (
	"github.com/hupe1980/pagetree/value"
)

// Predicate decides whether Put may write, given the current mapping.
type Predicate func(existing value.Value, exists bool) bool

// Put predicates.
var (
	Always   Predicate = func(value.Value, bool) bool { return true }
	IfAbsent Predicate = func(_ value.Value, exists bool) bool { return !exists }
	IfExists Predicate = func(_ value.Value, exists bool) bool { return exists }
)

// Get returns the value stored under key. A tombstone reads as absent.
func (l *Leaf) Get(key value.Value) (value.Value, bool, error) {
	e, _, err := l.search(key)
	if err != nil || e == 0 {
		return value.Value{}, false, err
	}
	ref := int(l.valueRef(e).Load())
	if ref == 0 {
		return value.Value{}, false, nil
	}
	v, err := l.readValue(ref)
	return v, err == nil, err
}

// Put maps key to val if pred allows it, and returns the mapping it saw.
// When pred rejects, nothing changes and the existing mapping is returned.
func (l *Leaf) Put(key, val value.Value, pred Predicate) (value.Value, bool, error) {
	var entry uint32 // speculative entry, reused across retries
	for {
		e, link, err := l.search(key)
		if err != nil {
			return value.Value{}, false, err
		}
		if e != 0 {
			return l.putExisting(e, val, pred)
		}

		if !pred(value.Value{}, false) {
			return value.Value{}, false, nil
		}
		if entry == 0 {
			if entry, err = l.allocEntry(key, val); err != nil {
				return value.Value{}, false, err
			}
		}
		if link.CompareAndSwap(0, entry) {
			return value.Value{}, false, nil
		}
		// Lost the link: the key may exist now.
	}
}

func (l *Leaf) putExisting(e int, val value.Value, pred Predicate) (value.Value, bool, error) {
	ref := l.valueRef(e)
	var blob uint32
	for {
		cur := int(ref.Load())
		var (
			existing value.Value
			err      error
		)
		if cur != 0 {
			if existing, err = l.readValue(cur); err != nil {
				return value.Value{}, false, err
			}
		}
		exists := cur != 0

		if !pred(existing, exists) {
			return existing, exists, nil
		}

		if exists && existing.Kind() == value.KindMutableLong && val.Kind() == value.KindMutableLong {
			if l.mutable(cur).CompareAndSwap(existing.AsInt(), val.AsInt()) {
				return existing, true, nil
			}
			continue
		}

		if blob == 0 {
			if blob, err = l.allocValue(val); err != nil {
				return value.Value{}, false, err
			}
		}
		if ref.CompareAndSwap(uint32(cur), blob) {
			return existing, exists, nil
		}
	}
}

// CompareAndReplace sets key to newVal only if its current value equals old.
func (l *Leaf) CompareAndReplace(key, old, newVal value.Value) (bool, error) {
	e, _, err := l.search(key)
	if err != nil || e == 0 {
		return false, err
	}

	ref := l.valueRef(e)
	var blob uint32
	for {
		cur := int(ref.Load())
		if cur == 0 {
			return false, nil
		}
		existing, err := l.readValue(cur)
		if err != nil {
			return false, err
		}
		if value.CompareValues(existing, old) != 0 {
			return false, nil
		}

		if existing.Kind() == value.KindMutableLong && newVal.Kind() == value.KindMutableLong {
			if l.mutable(cur).CompareAndSwap(old.AsInt(), newVal.AsInt()) {
				return true, nil
			}
			continue
		}

		if blob == 0 {
			if blob, err = l.allocValue(newVal); err != nil {
				return false, err
			}
		}
		if ref.CompareAndSwap(uint32(cur), blob) {
			return true, nil
		}
	}
}

// Remove tombstones key and returns the value it held.
func (l *Leaf) Remove(key value.Value) (value.Value, bool, error) {
	e, _, err := l.search(key)
	if err != nil || e == 0 {
		return value.Value{}, false, err
	}

	ref := l.valueRef(e)
	for {
		cur := int(ref.Load())
		if cur == 0 {
			return value.Value{}, false, nil
		}
		existing, err := l.readValue(cur)
		if err != nil {
			return value.Value{}, false, err
		}
		if ref.CompareAndSwap(uint32(cur), 0) {
			return existing, true, nil
		}
	}
}

// CompareAndRemove tombstones key only if its current value equals old.
func (l *Leaf) CompareAndRemove(key, old value.Value) (bool, error) {
	e, _, err := l.search(key)
	if err != nil || e == 0 {
		return false, err
	}

	ref := l.valueRef(e)
	for {
		cur := int(ref.Load())
		if cur == 0 {
			return false, nil
		}
		existing, err := l.readValue(cur)
		if err != nil {
			return false, err
		}
		if value.CompareValues(existing, old) != 0 {
			return false, nil
		}
		if ref.CompareAndSwap(uint32(cur), 0) {
			return true, nil
		}
	}
}

// Update applies fn to the MutableLong under key in place and returns the
// new value. An absent key is inserted as MutableLong(fn(0)).
func (l *Leaf) Update(key value.Value, fn func(int64) int64) (int64, error) {
	for {
		e, _, err := l.search(key)
		if err != nil {
			return 0, err
		}

		cur := 0
		if e != 0 {
			cur = int(l.valueRef(e).Load())
		}
		if cur == 0 {
			next := fn(0)
			_, exists, err := l.Put(key, value.MutableLong(next), IfAbsent)
			if err != nil {
				return 0, err
			}
			if !exists {
				return next, nil
			}
			continue
		}

		existing, err := l.readValue(cur)
		if err != nil {
			return 0, err
		}
		if existing.Kind() != value.KindMutableLong {
			return 0, ErrNotMutable
		}

		h := l.mutable(cur)
		for {
			old := h.Load()
			next := fn(old)
			if h.CompareAndSwap(old, next) {
				return next, nil
			}
		}
	}
}
