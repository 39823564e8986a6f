package pagetree

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/hupe1980/pagetree/internal/master"
	"github.com/hupe1980/pagetree/internal/registry"
	"github.com/hupe1980/pagetree/internal/vspace"
	"github.com/hupe1980/pagetree/paging"
)

// DB is an open page space: a master record, a registry of named trees and
// the trees' data pages.
//
// A DB is safe for concurrent use. Several DBs, in one process or many, may
// share the same mapped region; they coordinate only through CAS on the
// shared bytes.
type DB struct {
	space    paging.Space
	owned    bool
	master   *master.Record
	vs       *vspace.VSpace
	registry *registry.Registry
	trees    *ristretto.Cache[string, *Tree]

	readOnly bool
	closed   atomic.Bool

	metrics MetricsCollector
	logger  *Logger
}

// Open opens the store laid out in space, writing the master record if the
// space is blank. The caller keeps ownership of space; Close does not close it.
//
// A read-only space must already hold a master record.
func Open(space paging.Space, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)
	return open(space, false, o)
}

// OpenFile maps the file at path and opens it. A size of 0 uses the
// existing file size; a larger size extends the file. Paging options are
// taken from WithPaging.
func OpenFile(path string, size int64, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)
	space, err := paging.OpenFile(path, size, o.paging...)
	if err != nil {
		return nil, err
	}
	return open(space, true, o)
}

// OpenMemory opens a store over size bytes of anonymous memory.
func OpenMemory(size int64, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)
	space, err := paging.NewMemory(size, o.paging...)
	if err != nil {
		return nil, err
	}
	return open(space, true, o)
}

func open(space paging.Space, owned bool, o options) (*DB, error) {
	ctx := context.Background()

	var (
		rec     *master.Record
		created bool
		err     error
	)
	switch {
	case !space.Writable():
		rec, err = master.Open(space, 0)
	case o.concurrentBootstrap:
		rec, created, err = master.ConcurrentGetOrCreate(space)
	default:
		rec, created, err = master.GetOrCreate(space)
	}
	if err != nil {
		err = translateError(err)
		o.logger.LogOpen(ctx, space.PageSize(), space.PageCount(), false, err)
		if owned {
			err = errors.Join(err, space.Close())
		}
		return nil, err
	}

	db := &DB{
		space:    space,
		owned:    owned,
		master:   rec,
		readOnly: !space.Writable(),
		metrics:  o.metricsCollector,
		logger:   o.logger,
	}
	db.vs = vspace.New(space, rec)
	db.registry = registry.New(space, db.vs)

	if o.treeCacheSize > 0 {
		db.trees, err = ristretto.NewCache(&ristretto.Config[string, *Tree]{
			NumCounters: int64(o.treeCacheSize) * 10,
			MaxCost:     int64(o.treeCacheSize),
			BufferItems: 64,
		})
		if err != nil {
			if owned {
				err = errors.Join(err, space.Close())
			}
			return nil, err
		}
	}

	o.logger.LogOpen(ctx, space.PageSize(), space.PageCount(), created, nil)
	return db, nil
}

// Space returns the underlying page space.
func (db *DB) Space() paging.Space { return db.space }

// ReadOnly reports whether the DB rejects writes.
func (db *DB) ReadOnly() bool { return db.readOnly }

// Tree returns the named tree, registering it if it does not exist yet.
// Concurrent callers with the same name, in any opener, get handles to the
// same tree. On a read-only DB a missing tree is ErrReadOnly.
func (db *DB) Tree(name string) (*Tree, error) {
	if err := db.check(name); err != nil {
		return nil, err
	}
	if t, ok := db.cached(name); ok {
		return t, nil
	}

	if db.readOnly {
		t, ok, err := db.LookupTree(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrReadOnly
		}
		return t, nil
	}

	root, created, err := db.registry.FindOrCreate(name)
	if err != nil {
		err = translateError(err)
		db.logger.LogTreeCreated(context.Background(), name, err)
		return nil, err
	}
	if created {
		db.logger.LogTreeCreated(context.Background(), name, nil)
	}
	return db.remember(newTree(db, name, root)), nil
}

// LookupTree returns the named tree without registering it. The boolean is
// false if no tree has that name.
func (db *DB) LookupTree(name string) (*Tree, bool, error) {
	if err := db.check(name); err != nil {
		return nil, false, err
	}
	if t, ok := db.cached(name); ok {
		return t, true, nil
	}

	root, ok, err := db.registry.Find(name)
	if err != nil || !ok {
		return nil, false, translateError(err)
	}
	return db.remember(newTree(db, name, root)), true, nil
}

// TreeNames lists registered trees in name order. The list is a point in
// time view; trees registered concurrently may be missing.
func (db *DB) TreeNames() ([]string, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	names, err := db.registry.Names()
	return names, translateError(err)
}

// Sync flushes the space to stable storage.
func (db *DB) Sync() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return translateError(db.space.Sync())
}

// Close releases the tree cache and, for spaces opened by OpenFile or
// OpenMemory, the space itself. Close is idempotent.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	if db.trees != nil {
		db.trees.Close()
	}
	if !db.owned {
		return nil
	}
	return db.space.Close()
}

func (db *DB) check(name string) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if name == "" {
		return ErrInvalidName
	}
	return nil
}

func (db *DB) cached(name string) (*Tree, bool) {
	if db.trees == nil {
		return nil, false
	}
	return db.trees.Get(name)
}

func (db *DB) remember(t *Tree) *Tree {
	if db.trees != nil {
		db.trees.Set(t.name, t, 1)
	}
	return t
}
