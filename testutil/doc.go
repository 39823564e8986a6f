// Package testutil provides testing utilities for pagetree.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, goroutine-safe random source for keys and values and
// helpers that set up throwaway address spaces.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	key := rng.String(12)    // random UTF-8, including multi-byte runes
//	blob := rng.Bytes(64)
//	v := rng.Value()         // any value kind
//
// # Address Spaces
//
//	space := testutil.MemorySpace(t, 4096, 64) // closed by t.Cleanup
package testutil
