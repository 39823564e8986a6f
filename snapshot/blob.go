package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/pagetree/blobstore"
	"github.com/hupe1980/pagetree/paging"
)

// Backup exports space into the blob called name. The blob only becomes
// visible in store once the export completed.
func Backup(ctx context.Context, store blobstore.BlobStore, name string, space paging.Space, optFns ...func(*Options)) (*Manifest, error) {
	w, err := store.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create %q: %w", name, err)
	}

	m, err := Export(ctx, w, space, optFns...)
	if err != nil {
		if a, ok := w.(interface{ Abort() error }); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
			_ = store.Delete(ctx, name)
		}
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: finish %q: %w", name, err)
	}
	return m, nil
}

// Restore imports the blob called name into space.
func Restore(ctx context.Context, store blobstore.BlobStore, name string, space paging.Space, optFns ...func(*Options)) (m *Manifest, err error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %q: %w", name, err)
	}
	defer func() { err = errors.Join(err, b.Close()) }()

	r, err := blobstore.NewReader(ctx, b)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, r.Close()) }()

	return Import(ctx, r, space, optFns...)
}

// Inspect reads the manifest of the blob called name.
func Inspect(ctx context.Context, store blobstore.BlobStore, name string) (m *Manifest, err error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %q: %w", name, err)
	}
	defer func() { err = errors.Join(err, b.Close()) }()

	r, err := blobstore.NewReader(ctx, b)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, r.Close()) }()

	return ReadManifest(r)
}
