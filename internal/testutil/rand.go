package testutil

import "math/rand"

// NewSeeded returns a generator seeded explicitly for one scenario.
// Scenario runs never touch the process-wide generator: every run owns its
// generator, so runs are reproducible and parallel-safe.
func NewSeeded(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Payload fills a fresh n-byte slice from rng. n == 0 yields an empty,
// non-nil slice so zero-length frames stay distinguishable from "no
// frame".
func Payload(rng *rand.Rand, n int) []byte {
	p := make([]byte, n)
	// rand.Rand.Read never returns an error.
	rng.Read(p)
	return p
}
