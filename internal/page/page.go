// Package page defines the on-page format shared by the store's components:
// the magic tag at the start of every page, field offsets for each page kind
// under a given codec pair, and the error taxonomy.
package page

import (
	"fmt"

	"github.com/hupe1980/pagetree/internal/cas"
	"github.com/hupe1980/pagetree/internal/conv"
	"github.com/hupe1980/pagetree/paging"
)

// Kind is the 2-byte magic tag at offset 0 of every page.
type Kind uint16

// Page kinds.
const (
	KindNew            Kind = 0x0000
	KindMaster         Kind = 0x5555
	KindMasterContinue Kind = 0x7777
	KindInnerNode      Kind = 0xAAAA // reserved, never written
	KindLeafNode       Kind = 0xBBBB
	KindData           Kind = 0xCCCC
	KindDataContinue   Kind = 0xDDDD
)

func (k Kind) String() string {
	switch k {
	case KindNew:
		return "new"
	case KindMaster:
		return "master"
	case KindMasterContinue:
		return "master-continue"
	case KindInnerNode:
		return "inner-node"
	case KindLeafNode:
		return "leaf"
	case KindData:
		return "data"
	case KindDataContinue:
		return "data-continue"
	default:
		return fmt.Sprintf("Kind(0x%04x)", uint16(k))
	}
}

// Magic returns a handle to the magic tag of p.
func Magic(p []byte) cas.Uint16 {
	return cas.NewUint16(p, 0)
}

// KindOf atomically reads the magic tag of p.
func KindOf(p []byte) Kind {
	return Kind(Magic(p).Load())
}

// AlignUp rounds n up to a multiple of align, which must be a power of two.
func AlignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Layout holds field offsets for one codec pair.
type Layout struct {
	PageSize int
	RefSize  int
	PageNum  int

	// Master and continuation records.
	PageTail  int
	NextPage  int
	StoreTail int
	RootEntry int
	// MasterHeap and ContinueHeap are where each record's heap starts.
	MasterHeap   int
	ContinueHeap int
	// MasterLock is the spinlock word guarding master creation. The master
	// heap ends before it.
	MasterLock int

	// Leaf pages.
	LeafTail      int
	LeafLastValue int
	LeafHeap      int

	// Leaf entries, relative to the entry.
	EntryLesser  int
	EntryGreater int
	EntryValue   int
	EntryKey     int

	// Registry entries, relative to the entry.
	RegLesser   int
	RegGreater  int
	RegTreeRoot int
	RegName     int
	RegAlign    int
}

// NewLayout computes the layout for a space's codecs. Each CAS field sits
// at an offset aligned to its own width.
func NewLayout(space paging.Space) Layout {
	return layoutFor(space.PageSize(), space.Refs().Size(), space.PageNums().Size())
}

func layoutFor(pageSize, ref, pn int) Layout {
	l := Layout{PageSize: pageSize, RefSize: ref, PageNum: pn}

	l.PageTail = AlignUp(2, ref)
	l.NextPage = AlignUp(l.PageTail+ref, pn)
	l.ContinueHeap = AlignUp(l.NextPage+pn, 4)
	l.StoreTail = AlignUp(l.NextPage+pn, pn)
	l.RootEntry = AlignUp(l.StoreTail+pn, 4)
	l.MasterHeap = l.RootEntry + 4
	l.MasterLock = pageSize - 4

	l.LeafTail = AlignUp(2, ref)
	l.LeafLastValue = l.LeafTail + ref
	l.LeafHeap = AlignUp(l.LeafLastValue+ref, 4)

	l.EntryLesser = 0
	l.EntryGreater = ref
	l.EntryValue = 2 * ref
	// Keys start on a fresh word so no key byte shares a word with a CAS field.
	l.EntryKey = AlignUp(3*ref, 4)

	l.RegLesser = 0
	l.RegGreater = 4
	l.RegTreeRoot = AlignUp(8, pn)
	l.RegName = l.RegTreeRoot + pn
	l.RegAlign = max(4, pn)

	return l
}

// RefValue narrows an in-page offset to the reference width. Offsets past
// the page end are corrupt.
func (l Layout) RefValue(off int) (uint32, error) {
	if off > l.PageSize {
		return 0, fmt.Errorf("%w: offset %d beyond page of %d bytes", conv.ErrOverflow, off, l.PageSize)
	}
	return conv.Ref(off, l.RefSize)
}

// Ref binds a reference handle at off within p.
func (l Layout) Ref(p []byte, off int) cas.Ref {
	return cas.NewRef(p, off, l.RefSize)
}

// PageNumAt binds a page number handle at off within p.
func (l Layout) PageNumAt(p []byte, off int) cas.PageNum {
	return cas.NewPageNum(p, off, l.PageNum)
}
