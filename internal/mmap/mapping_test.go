package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAnon(t *testing.T) {
	m, err := MapAnon(1 << 16)
	require.NoError(t, err)
	defer m.Close()

	data := m.Bytes()
	require.Len(t, data, 1<<16)
	assert.True(t, m.Writable())

	for _, b := range data[:128] {
		assert.Zero(t, b)
	}

	data[0] = 0xAB
	assert.Equal(t, byte(0xAB), m.Bytes()[0])
	assert.NoError(t, m.Sync())
	assert.NoError(t, m.Advise(AccessRandom))
}

func TestMapAnonInvalidSize(t *testing.T) {
	_, err := MapAnon(0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestMapFileShared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(8192))

	a, err := MapFile(f, 8192, true)
	require.NoError(t, err)
	defer a.Close()

	b, err := MapFile(f, 8192, true)
	require.NoError(t, err)
	defer b.Close()

	a.Bytes()[4100] = 42
	assert.Equal(t, byte(42), b.Bytes()[4100], "writes are visible through a second mapping")

	require.NoError(t, a.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte(42), raw[4100])
}

func TestMapFileTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(100))

	_, err = MapFile(f, 4096, true)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestCloseIdempotent(t *testing.T) {
	m, err := MapAnon(4096)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Sync(), ErrClosed)
	assert.ErrorIs(t, m.Advise(AccessSequential), ErrClosed)
}
