package leaf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/hupe1980/pagetree/value"
)

// Entry is one key as seen by Walk. Tombstone entries have no value.
type Entry struct {
	Key       value.Value
	Value     value.Value
	Tombstone bool
}

// Walk visits every entry in key order, tombstones included. Entries linked
// while the walk runs may or may not be seen.
func (l *Leaf) Walk(fn func(Entry) error) error {
	var stack []int
	e := l.layout.LeafHeap
	for e != 0 || len(stack) > 0 {
		for e != 0 {
			stack = append(stack, e)
			e = int(l.lesser(e).Load())
			if e != 0 {
				if err := l.checkEntry(e); err != nil {
					return err
				}
			}
		}

		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ent, err := l.entry(top)
		if err != nil {
			return err
		}
		if err := fn(ent); err != nil {
			return err
		}

		e = int(l.greater(top).Load())
		if e != 0 {
			if err := l.checkEntry(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Leaf) entry(e int) (Entry, error) {
	key, _, err := value.Decode(l.data[e+l.layout.EntryKey:])
	if err != nil {
		return Entry{}, l.corrupt("key at %d: %v", e, err)
	}
	ref := int(l.valueRef(e).Load())
	if ref == 0 {
		return Entry{Key: key, Tombstone: true}, nil
	}
	v, err := l.readValue(ref)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: key, Value: v}, nil
}

// Stats summarizes a leaf page.
type Stats struct {
	Entries    int
	Tombstones int
	HeapUsed   int
	HeapSize   int
}

// Stats walks the page and counts entries.
func (l *Leaf) Stats() (Stats, error) {
	s := Stats{HeapUsed: l.heap.Used(), HeapSize: l.heap.Capacity()}
	err := l.Walk(func(e Entry) error {
		if e.Tombstone {
			s.Tombstones++
		} else {
			s.Entries++
		}
		return nil
	})
	return s, err
}

// Dump writes the entry tree as a Graphviz digraph named name.
func (l *Leaf) Dump(w io.Writer, name string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", strconv.Quote(name))

	// ids maps entry offsets to node numbers, assigned in visit order.
	ids := map[int]int{}
	id := func(e int) int {
		if n, ok := ids[e]; ok {
			return n
		}
		n := len(ids)
		ids[e] = n
		return n
	}

	stack := []int{l.layout.LeafHeap}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ent, err := l.entry(e)
		if err != nil {
			return err
		}
		label := ent.Key.String() + " = " + ent.Value.String()
		if ent.Tombstone {
			label = ent.Key.String() + " (removed)"
		}
		fmt.Fprintf(bw, "  n%d [label=%s];\n", id(e), strconv.Quote(label))

		for _, side := range []struct {
			next int
			tag  string
		}{
			{int(l.lesser(e).Load()), "lesser"},
			{int(l.greater(e).Load()), "greater"},
		} {
			if side.next == 0 {
				continue
			}
			if err := l.checkEntry(side.next); err != nil {
				return err
			}
			fmt.Fprintf(bw, "  n%d -> n%d [label=%q];\n", id(e), id(side.next), side.tag)
			stack = append(stack, side.next)
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
