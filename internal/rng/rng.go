// Package rng provides deterministic seed derivation for the Monte Carlo
// engines. Every parallel unit of work receives its own pre-derived seed;
// no goroutine ever shares a mutable rand.Rand, which would make results
// depend on scheduling order.
package rng

import (
	"hash/fnv"
	"math/rand"
)

// splitmix64 is the SplitMix64 finalizer. It is a bijection on uint64, so
// deriving sub-seeds from distinct indices can never collide.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// Derive produces a sub-seed from a base seed and a derivation path. Each
// path element is mixed in bijectively, so distinct paths yield distinct
// seeds for a fixed base.
func Derive(seed int64, path ...uint64) int64 {
	x := splitmix64(uint64(seed))
	for _, p := range path {
		x = splitmix64(x ^ splitmix64(p))
	}
	return int64(x)
}

// Stream creates a deterministic random number generator from a seed.
func Stream(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// NamedStream creates a deterministic generator scoped to a named
// operation, so independent stages of one run draw from independent
// streams even when they share the top-level seed.
func NamedStream(name string, seed int64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return Stream(Derive(seed, h.Sum64()))
}

// Permutation returns a random permutation of 0..n-1 drawn from the
// given stream.
func Permutation(r *rand.Rand, n int) []int {
	return r.Perm(n)
}
