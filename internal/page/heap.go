package page

import (
	"github.com/hupe1980/pagetree/internal/cas"
	"github.com/hupe1980/pagetree/internal/conv"
)

// Heap is a page-local bump allocator whose tail is a CAS reference field.
type Heap struct {
	tail  cas.Ref
	start int
	limit int
}

// NewHeap returns a heap over [start, limit) whose cursor lives in tail.
func NewHeap(tail cas.Ref, start, limit int) Heap {
	return Heap{tail: tail, start: start, limit: limit}
}

// Allocate reserves size bytes at an offset o with (o+skew)%align == 0 and
// returns o. It reports false when the page cannot satisfy the request.
// align must be a power of two.
func (h Heap) Allocate(size, align, skew int) (int, bool) {
	for {
		cur := int(h.tail.Load())
		start := AlignUp(cur+skew, align) - skew
		end := start + size
		if end > h.limit {
			return 0, false
		}
		next, err := conv.Ref(end, h.tail.Width())
		if err != nil {
			return 0, false
		}
		if h.tail.CompareAndSwap(uint32(cur), next) {
			return start, true
		}
	}
}

// Tail returns the current allocation cursor.
func (h Heap) Tail() int { return int(h.tail.Load()) }

// Start returns the first heap offset.
func (h Heap) Start() int { return h.start }

// Limit returns the end of the heap.
func (h Heap) Limit() int { return h.limit }

// Capacity returns the size of the whole heap.
func (h Heap) Capacity() int { return h.limit - h.start }

// Used returns the number of bytes handed out so far.
func (h Heap) Used() int { return h.Tail() - h.start }

// Valid reports whether the stored tail lies inside the heap.
func (h Heap) Valid() bool {
	t := h.Tail()
	return t >= h.start && t <= h.limit
}
