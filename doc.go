// Package pagetree provides an embedded, page-oriented key/value store for Go.
//
// A store is a fixed-page address space, backed by anonymous memory or
// memory-mapped files, holding a master record, a registry of named trees and
// one data page per tree. Every mutation is a single compare-and-swap on the
// mapped bytes, so any number of goroutines, and processes sharing the same
// file, read and write without a global lock.
//
// # Quick Start
//
// In memory:
//
//	db, _ := pagetree.OpenMemory(4 << 20)
//	defer db.Close()
//
//	users, _ := db.Tree("users")
//	users.Put(value.String("alice"), value.Int(42))
//	v, ok, _ := users.Get(value.String("alice"))
//
// Backed by a file:
//
//	db, _ := pagetree.OpenFile("store.pt", 64<<20, pagetree.WithPaging(func(o *paging.Options) {
//	    o.PageSize = 16 << 10
//	}))
//
// Over a space shared with other openers:
//
//	space, _ := paging.OpenFile("store.pt", 0)
//	db, _ := pagetree.Open(space) // bootstrap is safe against concurrent openers
//
// # Conditional Writes
//
//	t.PutIfAbsent(key, val)              // insert only
//	t.Replace(key, val)                  // update only
//	t.CompareAndReplace(key, old, val)   // update if unchanged
//	t.CompareAndRemove(key, old)         // delete if unchanged
//
// # Counters
//
// MutableLong values are updated in place with an 8-byte CAS:
//
//	n, _ := t.Increment(value.String("hits"), 1)
//	n, _ = t.Update(value.String("max"), func(v int64) int64 { return max(v, sample) })
//
// # Limits
//
//   - A tree lives in a single page; when it is full writes fail with ErrPageFull.
//   - Pages and superseded values are never reclaimed. Removing a key leaves a
//     tombstone, and writers that lose a race leak what they allocated.
//   - There are no multi-key transactions and no crash recovery.
//
// Use DB.Inspect to see page usage and leaked pages, and the snapshot package
// to copy a store to a file or a blob store.
package pagetree
