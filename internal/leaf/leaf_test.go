package leaf

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagetree/internal/page"
	"github.com/hupe1980/pagetree/paging"
	"github.com/hupe1980/pagetree/testutil"
	"github.com/hupe1980/pagetree/value"
)

func newLeafPage(t *testing.T, pageSize int, key, val value.Value) (*Leaf, paging.Space) {
	t.Helper()
	space := testutil.MemorySpace(t, pageSize, 2)
	l, err := Create(space, 1, key, val)
	require.NoError(t, err)
	return l, space
}

func str(s string) value.Value { return value.String(s) }

func TestMapSemantics(t *testing.T) {
	l, _ := newLeafPage(t, 4096, str("m"), str("root"))

	t.Run("get missing", func(t *testing.T) {
		for _, k := range []string{"a", "z", "mm", ""} {
			_, ok, err := l.Get(str(k))
			require.NoError(t, err)
			assert.False(t, ok)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		prev, existed, err := l.Put(str("k"), value.Int(7), Always)
		require.NoError(t, err)
		assert.False(t, existed)
		assert.False(t, prev.IsValid())

		v, ok, err := l.Get(str("k"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, value.Int(7), v)

		prev, existed, err = l.Put(str("k"), str("seven"), Always)
		require.NoError(t, err)
		assert.True(t, existed)
		assert.Equal(t, value.Int(7), prev)

		v, _, _ = l.Get(str("k"))
		assert.Equal(t, str("seven"), v)
	})

	t.Run("put if absent never overwrites", func(t *testing.T) {
		existing, existed, err := l.Put(str("k"), str("other"), IfAbsent)
		require.NoError(t, err)
		assert.True(t, existed)
		assert.Equal(t, str("seven"), existing)

		v, _, _ := l.Get(str("k"))
		assert.Equal(t, str("seven"), v)

		_, existed, err = l.Put(str("fresh"), str("new"), IfAbsent)
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("replace only if present", func(t *testing.T) {
		_, existed, err := l.Put(str("ghost"), str("x"), IfExists)
		require.NoError(t, err)
		assert.False(t, existed)
		_, ok, _ := l.Get(str("ghost"))
		assert.False(t, ok)
	})

	t.Run("compare and replace", func(t *testing.T) {
		ok, err := l.CompareAndReplace(str("k"), str("wrong"), str("eight"))
		require.NoError(t, err)
		assert.False(t, ok)
		v, _, _ := l.Get(str("k"))
		assert.Equal(t, str("seven"), v, "unchanged on failure")

		ok, err = l.CompareAndReplace(str("k"), str("seven"), str("eight"))
		require.NoError(t, err)
		assert.True(t, ok)
		v, _, _ = l.Get(str("k"))
		assert.Equal(t, str("eight"), v)

		ok, err = l.CompareAndReplace(str("missing"), str("x"), str("y"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remove", func(t *testing.T) {
		old, ok, err := l.Remove(str("k"))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, str("eight"), old)

		_, ok, _ = l.Get(str("k"))
		assert.False(t, ok)

		_, ok, err = l.Remove(str("k"))
		require.NoError(t, err)
		assert.False(t, ok, "already a tombstone")

		_, existed, err := l.Put(str("k"), str("back"), IfAbsent)
		require.NoError(t, err)
		assert.False(t, existed, "tombstone counts as absent")
		v, _, _ := l.Get(str("k"))
		assert.Equal(t, str("back"), v)
	})

	t.Run("compare and remove", func(t *testing.T) {
		ok, err := l.CompareAndRemove(str("k"), str("nope"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = l.CompareAndRemove(str("k"), str("back"))
		require.NoError(t, err)
		assert.True(t, ok)

		_, found, _ := l.Get(str("k"))
		assert.False(t, found)
	})

	t.Run("root key", func(t *testing.T) {
		v, ok, err := l.Get(str("m"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, str("root"), v)
	})
}

func TestKeyScenario(t *testing.T) {
	l, space := newLeafPage(t, 4096, str("Key0"), str("Value0"))
	for i := 1; i < 10; i++ {
		_, _, err := l.Put(str(fmt.Sprintf("Key%d", i)), str(fmt.Sprintf("Value%d", i)), Always)
		require.NoError(t, err)
	}

	reopened, err := Open(space, 1)
	require.NoError(t, err)

	v, ok, err := reopened.Get(str("Key5"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, str("Value5"), v)

	var keys []string
	require.NoError(t, reopened.Walk(func(e Entry) error {
		keys = append(keys, e.Key.AsString())
		return nil
	}))
	assert.Equal(t, []string{"Key0", "Key1", "Key2", "Key3", "Key4", "Key5", "Key6", "Key7", "Key8", "Key9"}, keys)
}

func TestMixedKinds(t *testing.T) {
	l, _ := newLeafPage(t, 4096, value.Int(0), str("zero"))
	keys := []value.Value{
		value.Int(-3), value.String("s"), value.Blob([]byte{1, 2}), value.MutableLong(9), value.Int(100),
	}
	for i, k := range keys {
		_, _, err := l.Put(k, value.Int(int64(i)), Always)
		require.NoError(t, err)
	}
	for i, k := range keys {
		v, ok, err := l.Get(k)
		require.NoError(t, err)
		require.True(t, ok, "key %v", k)
		assert.Equal(t, value.Int(int64(i)), v)
	}

	var order []value.Kind
	require.NoError(t, l.Walk(func(e Entry) error {
		order = append(order, e.Key.Kind())
		return nil
	}))
	assert.Equal(t, []value.Kind{
		value.KindInt, value.KindInt, value.KindInt, value.KindString, value.KindBlob, value.KindMutableLong,
	}, order)
}

func TestRandomAgainstMap(t *testing.T) {
	l, _ := newLeafPage(t, 32768, str("\x00"), value.Int(0))
	rng := testutil.NewRNG(4711)
	model := map[value.Value]value.Value{str("\x00"): value.Int(0)}

	for i := 0; i < 400; i++ {
		k := str(fmt.Sprintf("k%02d", rng.Intn(60)))
		switch rng.Intn(4) {
		case 0, 1:
			v := rng.Value()
			_, _, err := l.Put(k, v, Always)
			require.NoError(t, err)
			model[k] = v
		case 2:
			_, _, err := l.Remove(k)
			require.NoError(t, err)
			delete(model, k)
		default:
			v, ok, err := l.Get(k)
			require.NoError(t, err)
			want, exists := model[k]
			assert.Equal(t, exists, ok)
			if exists {
				assert.Equal(t, want, v)
			}
		}
	}

	s, err := l.Stats()
	require.NoError(t, err)
	assert.Equal(t, len(model), s.Entries)
}

func TestMutableLongInPlace(t *testing.T) {
	l, _ := newLeafPage(t, 4096, str("a"), str("b"))
	_, _, err := l.Put(str("n"), value.MutableLong(1), Always)
	require.NoError(t, err)
	used := l.Heap().Used()

	_, _, err = l.Put(str("n"), value.MutableLong(2), Always)
	require.NoError(t, err)
	ok, err := l.CompareAndReplace(str("n"), value.MutableLong(2), value.MutableLong(3))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, used, l.Heap().Used(), "no allocation for in-place updates")
	v, _, _ := l.Get(str("n"))
	assert.Equal(t, value.MutableLong(3), v)

	ok, err = l.CompareAndReplace(str("n"), value.Int(3), value.MutableLong(4))
	require.NoError(t, err)
	assert.False(t, ok, "Int(3) is a different kind")
}

func TestConcurrentIncrementsNoLostUpdates(t *testing.T) {
	l, _ := newLeafPage(t, 4096, str("counter"), value.MutableLong(0))

	const (
		workers = 8
		rounds  = 500
	)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				for {
					cur, _, err := l.Get(str("counter"))
					if err != nil {
						return err
					}
					ok, err := l.CompareAndReplace(str("counter"), cur, value.MutableLong(cur.AsInt()+1))
					if err != nil {
						return err
					}
					if ok {
						break
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	v, _, err := l.Get(str("counter"))
	require.NoError(t, err)
	assert.Equal(t, value.MutableLong(workers*rounds), v)
}

func TestUpdate(t *testing.T) {
	l, _ := newLeafPage(t, 4096, str("a"), str("b"))

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 250; i++ {
				if _, err := l.Update(str("hits"), func(v int64) int64 { return v + 1 }); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	v, _, err := l.Get(str("hits"))
	require.NoError(t, err)
	assert.Equal(t, value.MutableLong(2000), v)

	_, err = l.Update(str("a"), func(v int64) int64 { return v })
	assert.ErrorIs(t, err, ErrNotMutable)
}

func TestConcurrentInsertsDistinctKeys(t *testing.T) {
	l, _ := newLeafPage(t, 32768, str("m"), value.Int(0))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 60; i++ {
				k := str(fmt.Sprintf("w%d-%02d", w, i))
				_, _, err := l.Put(k, value.Int(int64(w*100+i)), Always)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 8; w++ {
		for i := 0; i < 60; i++ {
			v, ok, err := l.Get(str(fmt.Sprintf("w%d-%02d", w, i)))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, value.Int(int64(w*100+i)), v)
		}
	}
}

func TestConcurrentPutIfAbsentOneWinner(t *testing.T) {
	l, _ := newLeafPage(t, 4096, str("m"), value.Int(0))

	const workers = 16
	results := make([]bool, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			_, existed, err := l.Put(str("once"), value.Int(int64(w)), IfAbsent)
			assert.NoError(t, err)
			results[w] = !existed
		}(w)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, won := range results {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestPageFull(t *testing.T) {
	l, _ := newLeafPage(t, 1024, str("k0000"), str("v"))

	var err error
	n := 1
	for ; n < 1000; n++ {
		_, _, err = l.Put(str(fmt.Sprintf("k%04d", n)), str("some value"), Always)
		if err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, page.ErrPageFull)
	assert.ErrorIs(t, err, page.ErrCapacity)

	// Everything written before the failure is intact.
	for i := 1; i < n; i++ {
		v, ok, err := l.Get(str(fmt.Sprintf("k%04d", i)))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, str("some value"), v)
	}
	assert.LessOrEqual(t, l.Heap().Tail(), 1024)
}

func TestCreateValidation(t *testing.T) {
	space := testutil.MemorySpace(t, 1024, 3)

	_, err := Create(space, 1, str("k"), value.Blob(make([]byte, 2000)))
	assert.ErrorIs(t, err, page.ErrPageFull)

	_, err = Create(space, 2, str("k"), str("v"))
	require.NoError(t, err)
	_, err = Create(space, 2, str("k"), str("v"))
	assert.ErrorIs(t, err, page.ErrCorrupt)
}

func TestOpenValidation(t *testing.T) {
	space := testutil.MemorySpace(t, 1024, 4)

	_, err := Open(space, 1)
	assert.ErrorIs(t, err, page.ErrCorrupt, "blank page")

	p, _ := space.Page(2)
	page.Magic(p).Store(uint16(page.KindInnerNode))
	_, err = Open(space, 2)
	assert.ErrorIs(t, err, page.ErrUnsupported)

	_, err = Create(space, 3, str("k"), str("v"))
	require.NoError(t, err)
	p, _ = space.Page(3)
	l := page.NewLayout(space)
	l.Ref(p, l.LeafTail).Store(2)
	_, err = Open(space, 3)
	assert.ErrorIs(t, err, page.ErrCorrupt)

	corrupted := func(t *testing.T, mutate func(p []byte, lay page.Layout)) *Leaf {
		t.Helper()
		space := testutil.MemorySpace(t, 1024, 2)
		_, err := Create(space, 1, str("k"), str("v"))
		require.NoError(t, err)
		p, err := space.Page(1)
		require.NoError(t, err)
		lay := page.NewLayout(space)
		lay.Ref(p, lay.LeafTail).Store(512)
		mutate(p, lay)
		leaf, err := Open(space, 1)
		require.NoError(t, err)
		return leaf
	}

	t.Run("entry ref past page end", func(t *testing.T) {
		leaf := corrupted(t, func(p []byte, lay page.Layout) {
			lay.Ref(p, lay.LeafHeap+lay.EntryGreater).Store(uint32(lay.PageSize - 4))
		})
		_, _, err := leaf.Get(str("z"))
		assert.ErrorIs(t, err, page.ErrCorrupt)
		_, _, err = leaf.Put(str("z"), str("x"), Always)
		assert.ErrorIs(t, err, page.ErrCorrupt)
		assert.ErrorIs(t, leaf.Walk(func(Entry) error { return nil }), page.ErrCorrupt)
	})

	t.Run("entry ref unaligned", func(t *testing.T) {
		leaf := corrupted(t, func(p []byte, lay page.Layout) {
			lay.Ref(p, lay.LeafHeap+lay.EntryLesser).Store(uint32(lay.LeafHeap + 2))
		})
		_, _, err := leaf.Get(str("a"))
		assert.ErrorIs(t, err, page.ErrCorrupt)
	})

	t.Run("value ref beyond tail", func(t *testing.T) {
		leaf := corrupted(t, func(p []byte, lay page.Layout) {
			lay.Ref(p, lay.LeafHeap+lay.EntryValue).Store(600)
		})
		_, _, err := leaf.Get(str("k"))
		assert.ErrorIs(t, err, page.ErrCorrupt)
	})

	t.Run("mutable long unaligned", func(t *testing.T) {
		leaf := corrupted(t, func(p []byte, lay page.Layout) {
			p[100] = byte(value.KindMutableLong)
			lay.Ref(p, lay.LeafHeap+lay.EntryValue).Store(100)
		})
		_, _, err := leaf.Get(str("k"))
		assert.ErrorIs(t, err, page.ErrCorrupt)
		_, err = leaf.Update(str("k"), func(v int64) int64 { return v + 1 })
		assert.ErrorIs(t, err, page.ErrCorrupt)
	})
}

func TestWideRefs(t *testing.T) {
	space := testutil.MemorySpace(t, 1<<16, 2, func(o *paging.Options) { o.Refs = paging.Ref32 })
	l, err := Create(space, 1, value.Int(0), value.MutableLong(0))
	require.NoError(t, err)

	for i := int64(1); i < 2000; i++ {
		_, _, err := l.Put(value.Int(i), value.MutableLong(i), Always)
		require.NoError(t, err)
	}
	v, ok, err := l.Get(value.Int(1999))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value.MutableLong(1999), v)
}

func TestDump(t *testing.T) {
	l, _ := newLeafPage(t, 4096, str("b"), value.Int(2))
	_, _, _ = l.Put(str("a"), value.Int(1), Always)
	_, _, _ = l.Put(str("c"), value.Int(3), Always)
	_, _, _ = l.Remove(str("c"))

	var buf bytes.Buffer
	require.NoError(t, l.Dump(&buf, "t"))

	out := buf.String()
	assert.Contains(t, out, `digraph "t" {`)
	assert.Contains(t, out, `n0 [label="\"b\" = 2"];`)
	assert.Contains(t, out, `n0 -> n1 [label="lesser"];`)
	assert.Contains(t, out, `n0 -> n2 [label="greater"];`)
	assert.Contains(t, out, `(removed)`)
}
