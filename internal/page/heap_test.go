package page

import (
	"sort"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagetree/internal/cas"
)

func alignedPage(size int) []byte {
	buf := make([]uint64, size/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), size)
}

func TestHeapAllocate(t *testing.T) {
	p := alignedPage(256)
	tail := cas.NewRef(p, 2, 2)
	tail.Store(8)
	h := NewHeap(tail, 8, 256)

	off, ok := h.Allocate(5, 4, 0)
	require.True(t, ok)
	assert.Equal(t, 8, off)

	off, ok = h.Allocate(3, 4, 0)
	require.True(t, ok)
	assert.Equal(t, 16, off, "aligned past the 5-byte block")

	off, ok = h.Allocate(9, 8, 1)
	require.True(t, ok)
	assert.Equal(t, 0, (off+1)%8, "skewed so the payload is 8-aligned")

	assert.Equal(t, 248, h.Capacity())
	assert.True(t, h.Valid())

	_, ok = h.Allocate(1000, 4, 0)
	assert.False(t, ok)
}

func TestHeapConcurrentAllocationsDisjoint(t *testing.T) {
	p := alignedPage(8192)
	tail := cas.NewRef(p, 4, 4)
	tail.Store(16)
	h := NewHeap(tail, 16, 8192)

	var (
		mu   sync.Mutex
		offs []int
		wg   sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				off, ok := h.Allocate(12, 4, 0)
				if !ok {
					return
				}
				mu.Lock()
				offs = append(offs, off)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Ints(offs)
	for i := 1; i < len(offs); i++ {
		assert.GreaterOrEqual(t, offs[i], offs[i-1]+12)
	}
	assert.LessOrEqual(t, h.Tail(), 8192)
	assert.Equal(t, (8192-16)/12, len(offs))
}
