package snapshot_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagetree"
	"github.com/hupe1980/pagetree/blobstore"
	"github.com/hupe1980/pagetree/paging"
	"github.com/hupe1980/pagetree/snapshot"
	"github.com/hupe1980/pagetree/testutil"
	"github.com/hupe1980/pagetree/value"
)

const (
	testPageSize = 4096
	testPages    = 64
)

// populate writes a few trees into space and returns the expected contents.
func populate(t *testing.T, space paging.Space) map[string]map[string]value.Value {
	t.Helper()

	db, err := pagetree.Open(space)
	require.NoError(t, err)
	defer db.Close()

	rng := testutil.NewRNG(7)
	want := make(map[string]map[string]value.Value)
	for _, name := range []string{"users", "counters", "blobs"} {
		tree, err := db.Tree(name)
		require.NoError(t, err)
		want[name] = make(map[string]value.Value)
		for i := range 20 {
			key := fmt.Sprintf("%s-%03d", name, i)
			var v value.Value
			switch name {
			case "users":
				v = value.String(rng.String(16))
			case "counters":
				v = value.Int(rng.Int64())
			default:
				v = value.Blob(rng.Bytes(24))
			}
			_, _, err := tree.Put(value.String(key), v)
			require.NoError(t, err)
			want[name][key] = v
		}
	}
	return want
}

func verify(t *testing.T, space paging.Space, want map[string]map[string]value.Value) {
	t.Helper()

	db, err := pagetree.Open(space)
	require.NoError(t, err)
	defer db.Close()

	names, err := db.TreeNames()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users", "counters", "blobs"}, names)

	for name, entries := range want {
		tree, ok, err := db.LookupTree(name)
		require.NoError(t, err)
		require.True(t, ok, name)
		for key, v := range entries {
			got, found, err := tree.Get(value.String(key))
			require.NoError(t, err)
			require.True(t, found, key)
			assert.True(t, value.Equal(v, got), key)
		}
	}

	stats, err := db.Inspect()
	require.NoError(t, err)
	assert.Empty(t, stats.LeakedPages)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, c := range []snapshot.Compression{
		snapshot.CompressionNone,
		snapshot.CompressionSnappy,
		snapshot.CompressionLZ4,
		snapshot.CompressionZstd,
	} {
		t.Run(c.String(), func(t *testing.T) {
			src := testutil.MemorySpace(t, testPageSize, testPages)
			want := populate(t, src)

			var buf bytes.Buffer
			m, err := snapshot.Export(ctx, &buf, src, func(o *snapshot.Options) {
				o.Compression = c
				o.BatchPages = 2
				o.Concurrency = 3
			})
			require.NoError(t, err)
			assert.Equal(t, c, m.Compression)
			assert.Equal(t, testPageSize, m.PageSize)
			assert.Equal(t, uint64(testPages), m.PageCount)
			assert.Greater(t, m.UsedPages, uint64(1))
			assert.NotEqual(t, [16]byte{}, [16]byte(m.ID))

			read, err := snapshot.ReadManifest(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, m.ID, read.ID)
			assert.Equal(t, m.UsedPages, read.UsedPages)
			assert.True(t, m.CreatedAt.Equal(read.CreatedAt))

			dst := testutil.MemorySpace(t, testPageSize, testPages)
			got, err := snapshot.Import(ctx, &buf, dst)
			require.NoError(t, err)
			assert.Equal(t, m.ID, got.ID)

			for n := range m.UsedPages {
				a, err := src.Page(n)
				require.NoError(t, err)
				b, err := dst.Page(n)
				require.NoError(t, err)
				require.Equal(t, a, b, "page %d", n)
			}

			verify(t, dst, want)
		})
	}
}

func TestRoundTripBlankSpace(t *testing.T) {
	ctx := context.Background()
	src := testutil.MemorySpace(t, testPageSize, 8)

	var buf bytes.Buffer
	m, err := snapshot.Export(ctx, &buf, src)
	require.NoError(t, err)
	assert.Zero(t, m.UsedPages)

	dst := testutil.MemorySpace(t, testPageSize, 8)
	_, err = snapshot.Import(ctx, &buf, dst)
	require.NoError(t, err)

	db, err := pagetree.Open(dst)
	require.NoError(t, err)
	defer db.Close()

	names, err := db.TreeNames()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestImportErrors(t *testing.T) {
	ctx := context.Background()

	src := testutil.MemorySpace(t, testPageSize, testPages)
	populate(t, src)

	export := func(t *testing.T, c snapshot.Compression) []byte {
		var buf bytes.Buffer
		_, err := snapshot.Export(ctx, &buf, src, func(o *snapshot.Options) { o.Compression = c })
		require.NoError(t, err)
		return buf.Bytes()
	}

	t.Run("checksum mismatch", func(t *testing.T) {
		data := export(t, snapshot.CompressionNone)
		// Last payload byte, right before the end-of-stream header.
		data[len(data)-13] ^= 0xff

		_, err := snapshot.Import(ctx, bytes.NewReader(data), testutil.MemorySpace(t, testPageSize, testPages))
		assert.ErrorIs(t, err, snapshot.ErrCorrupt)
	})

	t.Run("truncated", func(t *testing.T) {
		data := export(t, snapshot.CompressionZstd)
		data = data[:len(data)-20]

		_, err := snapshot.Import(ctx, bytes.NewReader(data), testutil.MemorySpace(t, testPageSize, testPages))
		assert.ErrorIs(t, err, snapshot.ErrCorrupt)
	})

	t.Run("bad magic", func(t *testing.T) {
		data := export(t, snapshot.CompressionNone)
		data[0] = 'X'

		_, err := snapshot.Import(ctx, bytes.NewReader(data), testutil.MemorySpace(t, testPageSize, testPages))
		assert.ErrorIs(t, err, snapshot.ErrCorrupt)
	})

	t.Run("page size mismatch", func(t *testing.T) {
		data := export(t, snapshot.CompressionNone)

		_, err := snapshot.Import(ctx, bytes.NewReader(data), testutil.MemorySpace(t, 2*testPageSize, testPages))
		assert.ErrorIs(t, err, snapshot.ErrIncompatible)
	})

	t.Run("page number codec mismatch", func(t *testing.T) {
		data := export(t, snapshot.CompressionNone)
		dst := testutil.MemorySpace(t, testPageSize, testPages, func(o *paging.Options) { o.PageNums = paging.PageNum64 })

		_, err := snapshot.Import(ctx, bytes.NewReader(data), dst)
		assert.ErrorIs(t, err, snapshot.ErrIncompatible)
	})

	t.Run("target too small", func(t *testing.T) {
		data := export(t, snapshot.CompressionNone)

		_, err := snapshot.Import(ctx, bytes.NewReader(data), testutil.MemorySpace(t, testPageSize, 1))
		assert.ErrorIs(t, err, snapshot.ErrIncompatible)
	})

	t.Run("target not empty", func(t *testing.T) {
		data := export(t, snapshot.CompressionNone)
		dst := testutil.MemorySpace(t, testPageSize, testPages)

		_, err := snapshot.Import(ctx, bytes.NewReader(data), dst)
		require.NoError(t, err)

		_, err = snapshot.Import(ctx, bytes.NewReader(data), dst)
		assert.ErrorIs(t, err, snapshot.ErrNotEmpty)
	})

	t.Run("canceled", func(t *testing.T) {
		data := export(t, snapshot.CompressionNone)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := snapshot.Import(cctx, bytes.NewReader(data), testutil.MemorySpace(t, testPageSize, testPages))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExportOptions(t *testing.T) {
	space := testutil.MemorySpace(t, testPageSize, 4)

	for name, fn := range map[string]func(*snapshot.Options){
		"zero batch":          func(o *snapshot.Options) { o.BatchPages = 0 },
		"unknown compression": func(o *snapshot.Options) { o.Compression = 9 },
		"huge batch":          func(o *snapshot.Options) { o.BatchPages = 1 << 20 },
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := snapshot.Export(context.Background(), &buf, space, fn)
			assert.ErrorIs(t, err, snapshot.ErrInvalidOptions)
			assert.Zero(t, buf.Len())
		})
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []snapshot.Compression{
		snapshot.CompressionNone,
		snapshot.CompressionSnappy,
		snapshot.CompressionLZ4,
		snapshot.CompressionZstd,
	} {
		got, err := snapshot.ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := snapshot.ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, snapshot.CompressionZstd, got)

	_, err = snapshot.ParseCompression("brotli")
	assert.ErrorIs(t, err, snapshot.ErrInvalidOptions)
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()

	stores := map[string]blobstore.BlobStore{
		"memory": blobstore.NewMemoryStore(),
		"local":  blobstore.NewLocalStore(t.TempDir()),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			src := testutil.MemorySpace(t, testPageSize, testPages)
			want := populate(t, src)

			m, err := snapshot.Backup(ctx, store, "backups/nightly.snap", src, func(o *snapshot.Options) {
				o.Compression = snapshot.CompressionLZ4
			})
			require.NoError(t, err)

			names, err := store.List(ctx, "backups/")
			require.NoError(t, err)
			assert.Equal(t, []string{"backups/nightly.snap"}, names)

			info, err := snapshot.Inspect(ctx, store, "backups/nightly.snap")
			require.NoError(t, err)
			assert.Equal(t, m.ID, info.ID)

			dst := testutil.MemorySpace(t, testPageSize, testPages)
			_, err = snapshot.Restore(ctx, store, "backups/nightly.snap", dst)
			require.NoError(t, err)
			verify(t, dst, want)

			_, err = snapshot.Restore(ctx, store, "missing.snap", testutil.MemorySpace(t, testPageSize, testPages))
			assert.ErrorIs(t, err, blobstore.ErrNotFound)
		})
	}
}

func TestBackupFailureLeavesNoBlob(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	src := testutil.MemorySpace(t, testPageSize, testPages)
	populate(t, src)

	_, err := snapshot.Backup(ctx, store, "bad.snap", src, func(o *snapshot.Options) { o.Compression = 9 })
	require.ErrorIs(t, err, snapshot.ErrInvalidOptions)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestThrottledRoundTrip(t *testing.T) {
	ctx := context.Background()
	throttle := func(o *snapshot.Options) { o.BytesPerSecond = 64 << 20 }

	src := testutil.MemorySpace(t, testPageSize, testPages)
	want := populate(t, src)

	var buf bytes.Buffer
	_, err := snapshot.Export(ctx, &buf, src, throttle, func(o *snapshot.Options) { o.Concurrency = 1 })
	require.NoError(t, err)

	dst := testutil.MemorySpace(t, testPageSize, testPages)
	_, err = snapshot.Import(ctx, &buf, dst, throttle)
	require.NoError(t, err)
	verify(t, dst, want)
}
