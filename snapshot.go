package pagetree

import (
	"context"
	"io"

	"github.com/hupe1980/pagetree/blobstore"
	"github.com/hupe1980/pagetree/paging"
	"github.com/hupe1980/pagetree/snapshot"
)

// Export writes a snapshot of the DB's page space to w. Writers active
// during the export make it a fuzzy copy.
func (db *DB) Export(ctx context.Context, w io.Writer, optFns ...func(*snapshot.Options)) (*snapshot.Manifest, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	m, err := snapshot.Export(ctx, w, db.space, optFns...)
	db.logger.LogSnapshot(ctx, "export", "stream", usedPages(m), err)
	return m, err
}

// Backup exports the DB into the blob called name.
func (db *DB) Backup(ctx context.Context, store blobstore.BlobStore, name string, optFns ...func(*snapshot.Options)) (*snapshot.Manifest, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	m, err := snapshot.Backup(ctx, store, name, db.space, optFns...)
	db.logger.LogSnapshot(ctx, "backup", name, usedPages(m), err)
	return m, err
}

// Import loads a snapshot from r into the blank space and opens it.
func Import(ctx context.Context, r io.Reader, space paging.Space, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)
	m, err := snapshot.Import(ctx, r, space)
	o.logger.LogSnapshot(ctx, "import", "stream", usedPages(m), err)
	if err != nil {
		return nil, err
	}
	return open(space, false, o)
}

// Restore loads the blob called name into the blank space and opens it.
func Restore(ctx context.Context, store blobstore.BlobStore, name string, space paging.Space, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)
	m, err := snapshot.Restore(ctx, store, name, space)
	o.logger.LogSnapshot(ctx, "restore", name, usedPages(m), err)
	if err != nil {
		return nil, err
	}
	return open(space, false, o)
}

func usedPages(m *snapshot.Manifest) uint64 {
	if m == nil {
		return 0
	}
	return m.UsedPages
}
