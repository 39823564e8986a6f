package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagetree/blobstore"
	"github.com/hupe1980/pagetree/value"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestCLI(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "store.db")
	size := "262144"

	_, err := runCLI(t, "-file", file, "-size", size, "put", "users", "alice", "str:admin")
	require.NoError(t, err)
	_, err = runCLI(t, "-file", file, "put", "counters", "int:1", "long:41")
	require.NoError(t, err)

	out, err := runCLI(t, "-file", file, "put", "users", "alice", "str:owner")
	require.NoError(t, err)
	assert.Equal(t, "replaced \"admin\"\n", out)

	out, err = runCLI(t, "-file", file, "get", "users", "alice")
	require.NoError(t, err)
	assert.Equal(t, "str:owner\n", out)

	out, err = runCLI(t, "-file", file, "get", "counters", "int:1")
	require.NoError(t, err)
	assert.Equal(t, "long:41\n", out)

	out, err = runCLI(t, "-file", file, "trees")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users", "counters"}, strings.Fields(out))

	out, err = runCLI(t, "-file", file, "dump", "users")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `digraph "users" {`))

	out, err = runCLI(t, "-file", file, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "trees:           2 (0 empty)")
	assert.Contains(t, out, "leaked pages:    0")

	snap := filepath.Join(dir, "backups", "store.snap")
	out, err = runCLI(t, "-file", file, "export", snap, "-compression", "lz4")
	require.NoError(t, err)
	assert.Contains(t, out, "(lz4)")

	restored := filepath.Join(dir, "restored.db")
	out, err = runCLI(t, "-file", restored, "import", snap)
	require.NoError(t, err)
	assert.Contains(t, out, "2 trees")

	out, err = runCLI(t, "-file", restored, "get", "users", "alice")
	require.NoError(t, err)
	assert.Equal(t, "str:owner\n", out)

	out, err = runCLI(t, "-file", file, "del", "users", "alice")
	require.NoError(t, err)
	assert.Equal(t, "removed \"owner\"\n", out)

	_, err = runCLI(t, "-file", file, "get", "users", "alice")
	assert.Error(t, err)

	// The restored copy is unaffected.
	out, err = runCLI(t, "-file", restored, "get", "users", "alice")
	require.NoError(t, err)
	assert.Equal(t, "str:owner\n", out)
}

func TestCLIBench(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bench.db")

	out, err := runCLI(t, "-file", file, "-size", "65536", "bench", "-workers", "4", "-ops", "2000", "-keys", "16")
	require.NoError(t, err)
	assert.Contains(t, out, "2000 ops")
	assert.Contains(t, out, "0 capacity")
}

func TestCLIUsage(t *testing.T) {
	_, err := runCLI(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "-file", "x.db", "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "-file", filepath.Join(t.TempDir(), "x.db"), "-size", "65536", "get", "only-tree")
	assert.ErrorIs(t, err, errUsage)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want value.Value
	}{
		{"plain", value.String("plain")},
		{"str:a:b", value.String("a:b")},
		{"int:-7", value.Int(-7)},
		{"long:9", value.MutableLong(9)},
		{"blob:00ff", value.Blob([]byte{0x00, 0xff})},
		{"http://x", value.String("http://x")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseValue(tt.in)
			require.NoError(t, err)
			assert.True(t, value.Equal(tt.want, got), "got %s", got)
		})
	}

	for _, bad := range []string{"int:x", "long:", "blob:zz"} {
		_, err := parseValue(bad)
		assert.Error(t, err, bad)
	}

	for _, v := range []value.Value{value.Int(3), value.MutableLong(-2), value.String("s"), value.Blob([]byte("b"))} {
		got, err := parseValue(formatValue(v))
		require.NoError(t, err)
		assert.True(t, value.Equal(v, got))
	}
}

func TestReorder(t *testing.T) {
	assert.Equal(t,
		[]string{"-compression", "lz4", "out.snap"},
		reorder([]string{"out.snap", "-compression", "lz4"}))
	assert.Equal(t,
		[]string{"-compression=lz4", "out.snap"},
		reorder([]string{"out.snap", "-compression=lz4"}))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		dir := t.TempDir()
		store, name, err := openStore(ctx, filepath.Join(dir, "db.snap"))
		require.NoError(t, err)
		assert.Equal(t, "db.snap", name)
		assert.IsType(t, &blobstore.LocalStore{}, store)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, target := range []string{"s3://bucket", "s3:///key", "ftp://host/key"} {
			_, _, err := openStore(ctx, target)
			assert.Error(t, err, target)
		}
	})

	t.Run("minio without endpoint", func(t *testing.T) {
		t.Setenv("PAGETREE_MINIO_ENDPOINT", "")
		_, _, err := openStore(ctx, "minio://bucket/db.snap")
		assert.ErrorContains(t, err, "PAGETREE_MINIO_ENDPOINT")
	})
}
