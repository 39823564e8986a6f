package master

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagetree/internal/page"
	"github.com/hupe1980/pagetree/paging"
	"github.com/hupe1980/pagetree/testutil"
)

func TestConcurrentGetOrCreateSingleCreator(t *testing.T) {
	space := testutil.MemorySpace(t, 4096, 8)

	const openers = 32
	var (
		creators atomic.Int32
		wg       sync.WaitGroup
		records  = make([]*Record, openers)
	)
	start := make(chan struct{})
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			r, created, err := ConcurrentGetOrCreate(space)
			if !assert.NoError(t, err) {
				return
			}
			if created {
				creators.Add(1)
			}
			records[i] = r
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), creators.Load())
	for _, r := range records {
		require.NotNil(t, r)
		assert.True(t, r.IsMaster())
		assert.Equal(t, uint64(1), r.StoreTail())
		assert.Equal(t, 16, r.Heap().Tail())
		assert.Equal(t, int32(0), r.RootEntry().Load())
	}

	p, err := space.Page(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x55, 0x55}, p[:2])
	assert.Equal(t, []byte{0, 0, 0, 0}, p[4092:], "lock released")
}

func TestGetOrCreateFirstCallWins(t *testing.T) {
	space := testutil.MemorySpace(t, 4096, 4)

	r, created, err := GetOrCreate(space)
	require.NoError(t, err)
	assert.True(t, created)

	off, ok := r.Allocate(10, 4)
	require.True(t, ok)
	assert.Equal(t, 16, off)

	again, created, err := GetOrCreate(space)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 26, again.Heap().Tail(), "reopen sees existing allocations")
}

func TestAllocatePage(t *testing.T) {
	space := testutil.MemorySpace(t, 4096, 4)
	r, _, err := ConcurrentGetOrCreate(space)
	require.NoError(t, err)

	for want := uint64(1); want < 4; want++ {
		n, err := r.AllocatePage()
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	_, err = r.AllocatePage()
	assert.ErrorIs(t, err, page.ErrNoSpace)
	assert.ErrorIs(t, err, page.ErrCapacity)
}

func TestAllocatePageConcurrentUnique(t *testing.T) {
	space := testutil.MemorySpace(t, 1024, 256)
	r, _, err := ConcurrentGetOrCreate(space)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = map[uint64]bool{}
		wg   sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n, err := r.AllocatePage()
				if err != nil {
					assert.ErrorIs(t, err, page.ErrNoSpace)
					return
				}
				mu.Lock()
				assert.False(t, seen[n], "page %d handed out twice", n)
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 255)
}

func TestMasterHeapStopsBeforeLock(t *testing.T) {
	space := testutil.MemorySpace(t, 4096, 2)
	r, _, err := ConcurrentGetOrCreate(space)
	require.NoError(t, err)

	_, ok := r.Allocate(4096-16-4, 4)
	assert.True(t, ok)
	_, ok = r.Allocate(1, 1)
	assert.False(t, ok)
}

func TestContinuation(t *testing.T) {
	space := testutil.MemorySpace(t, 4096, 4)
	m, _, err := ConcurrentGetOrCreate(space)
	require.NoError(t, err)

	n, err := m.AllocatePage()
	require.NoError(t, err)

	c, err := CreateContinuation(space, n)
	require.NoError(t, err)
	assert.Equal(t, page.KindMasterContinue, c.Kind())
	assert.False(t, c.IsMaster())
	assert.Equal(t, 8, c.Heap().Start())

	_, err = c.AllocatePage()
	assert.Error(t, err)

	_, err = CreateContinuation(space, n)
	assert.ErrorIs(t, err, page.ErrCorrupt, "page already initialized")

	assert.True(t, m.Next().CompareAndSwap(0, n))
	reopened, err := Open(space, 0)
	require.NoError(t, err)
	assert.Equal(t, n, reopened.Next().Load())
}

func TestOpenValidation(t *testing.T) {
	t.Run("blank page", func(t *testing.T) {
		space := testutil.MemorySpace(t, 4096, 2)
		_, err := Open(space, 0)
		assert.ErrorIs(t, err, page.ErrCorrupt)
	})

	t.Run("unknown magic", func(t *testing.T) {
		space := testutil.MemorySpace(t, 4096, 2)
		p, _ := space.Page(0)
		page.Magic(p).Store(0x1234)
		_, err := Open(space, 0)
		assert.ErrorIs(t, err, page.ErrCorrupt)
	})

	t.Run("inner node is unsupported", func(t *testing.T) {
		space := testutil.MemorySpace(t, 4096, 2)
		p, _ := space.Page(1)
		page.Magic(p).Store(uint16(page.KindInnerNode))
		_, err := Open(space, 1)
		assert.ErrorIs(t, err, page.ErrUnsupported)
	})

	t.Run("tail out of range", func(t *testing.T) {
		space := testutil.MemorySpace(t, 4096, 2)
		_, _, err := ConcurrentGetOrCreate(space)
		require.NoError(t, err)

		p, _ := space.Page(0)
		l := page.NewLayout(space)
		l.Ref(p, l.PageTail).Store(2)

		_, err = Open(space, 0)
		var ce *page.CorruptError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, uint64(0), ce.Page)
	})

	t.Run("store tail beyond space", func(t *testing.T) {
		space := testutil.MemorySpace(t, 4096, 2)
		_, _, err := ConcurrentGetOrCreate(space)
		require.NoError(t, err)

		p, _ := space.Page(0)
		l := page.NewLayout(space)
		l.PageNumAt(p, l.StoreTail).Store(99)

		_, err = Open(space, 0)
		assert.ErrorIs(t, err, page.ErrCorrupt)
	})
}

func TestWideCodecs(t *testing.T) {
	space := testutil.MemorySpace(t, 1<<16, 3, func(o *paging.Options) {
		o.Refs = paging.Ref32
		o.PageNums = paging.PageNum64
	})

	r, created, err := ConcurrentGetOrCreate(space)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 28, r.Heap().Start())

	n, err := r.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}
