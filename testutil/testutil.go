package testutil

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/hupe1980/pagetree/paging"
	"github.com/hupe1980/pagetree/value"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63 returns a non-negative pseudo-random 63-bit integer.
func (r *RNG) Int63() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63()
}

// Int64 returns a pseudo-random integer over the full int64 range.
func (r *RNG) Int64() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(r.rand.Uint64())
}

// Bytes returns n random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// runes mixes 1-, 2-, 3- and 4-byte UTF-8 encodings.
var runes = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-äöüßéñ€中文字😀🚀")

// String returns a random UTF-8 string of n runes.
func (r *RNG) String(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]rune, n)
	for i := range out {
		out[i] = runes[r.rand.Intn(len(runes))]
	}
	return string(out)
}

// Value returns a random value of a random kind.
func (r *RNG) Value() value.Value {
	switch r.Intn(4) {
	case 0:
		return value.Int(r.Int64())
	case 1:
		return value.String(r.String(1 + r.Intn(16)))
	case 2:
		return value.Blob(r.Bytes(r.Intn(24)))
	default:
		return value.MutableLong(r.Int64())
	}
}

// MemorySpace returns an anonymous address space of pages pages, closed
// when the test ends.
func MemorySpace(tb testing.TB, pageSize, pages int, optFns ...func(*paging.Options)) *paging.Region {
	tb.Helper()

	fns := append([]func(*paging.Options){func(o *paging.Options) { o.PageSize = pageSize }}, optFns...)
	space, err := paging.NewMemory(int64(pageSize*pages), fns...)
	if err != nil {
		tb.Fatalf("testutil: create memory space: %v", err)
	}
	tb.Cleanup(func() { _ = space.Close() })
	return space
}
