package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagetree/internal/cas"
	"github.com/hupe1980/pagetree/internal/master"
	"github.com/hupe1980/pagetree/internal/page"
	"github.com/hupe1980/pagetree/internal/vspace"
	"github.com/hupe1980/pagetree/paging"
	"github.com/hupe1980/pagetree/testutil"
)

func open(t *testing.T, space paging.Space) *Registry {
	t.Helper()
	m, _, err := master.ConcurrentGetOrCreate(space)
	require.NoError(t, err)
	return New(space, vspace.New(space, m))
}

func TestFindOrCreateIdempotent(t *testing.T) {
	r := open(t, testutil.MemorySpace(t, 4096, 8))

	a, created, err := r.FindOrCreate("a")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := r.FindOrCreate("a")
	require.NoError(t, err)
	assert.False(t, created)

	a.Store(5)
	assert.Equal(t, uint64(5), again.Load(), "same root handle")

	b, _, err := r.FindOrCreate("b")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), b.Load(), "trees are isolated")
}

func TestFind(t *testing.T) {
	r := open(t, testutil.MemorySpace(t, 4096, 8))

	_, ok, err := r.Find("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, name := range []string{"m", "c", "x", "a", "e"} {
		_, _, err := r.FindOrCreate(name)
		require.NoError(t, err)
	}

	_, ok, err = r.Find("e")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = r.Find("ee")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamesInOrder(t *testing.T) {
	r := open(t, testutil.MemorySpace(t, 1024, 64))
	rng := testutil.NewRNG(4711)

	want := map[string]bool{}
	for i := 0; i < 150; i++ {
		name := rng.String(1 + rng.Intn(12))
		want[name] = true
		_, _, err := r.FindOrCreate(name)
		require.NoError(t, err)
	}

	names, err := r.Names()
	require.NoError(t, err)

	expected := make([]string, 0, len(want))
	for name := range want {
		expected = append(expected, name)
	}
	sort.Strings(expected)
	assert.Equal(t, expected, names)
}

func TestConcurrentFindOrCreateSameName(t *testing.T) {
	space := testutil.MemorySpace(t, 4096, 16)

	const goroutines = 20
	var (
		wg      sync.WaitGroup
		linked  atomic.Int32
		handles = make([]cas.PageNum, goroutines)
	)
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		r := open(t, space)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			h, created, err := r.FindOrCreate("shared")
			if !assert.NoError(t, err) {
				return
			}
			if created {
				linked.Add(1)
			}
			handles[i] = h
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), linked.Load())

	handles[0].Store(42)
	for _, h := range handles {
		assert.Equal(t, uint64(42), h.Load())
	}

	names, err := open(t, space).Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, names)
}

func TestConcurrentFindOrCreateManyNames(t *testing.T) {
	space := testutil.MemorySpace(t, 1024, 256)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		r := open(t, space)
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				// Overlapping names across goroutines.
				_, _, err := r.FindOrCreate(fmt.Sprintf("tree-%03d", (g*13+i)%100))
				if !assert.NoError(t, err) {
					return
				}
			}
		}(g)
	}
	wg.Wait()

	names, err := open(t, space).Names()
	require.NoError(t, err)
	assert.True(t, sort.StringsAreSorted(names))
	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "%s listed twice", n)
		seen[n] = true
	}
}

func TestWideCodecs(t *testing.T) {
	space := testutil.MemorySpace(t, 1<<16, 4, func(o *paging.Options) {
		o.Refs = paging.Ref32
		o.PageNums = paging.PageNum64
	})
	r := open(t, space)

	h, _, err := r.FindOrCreate("wide")
	require.NoError(t, err)
	h.Store(1 << 33)

	found, ok, err := r.Find("wide")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1<<33), found.Load())
}

func TestNameTooLarge(t *testing.T) {
	r := open(t, testutil.MemorySpace(t, 1024, 4))
	_, _, err := r.FindOrCreate(string(make([]byte, 2000)))
	assert.ErrorIs(t, err, page.ErrTooLarge)
}
