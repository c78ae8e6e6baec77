// Package xrand provides the injectable random source used by the
// fraction matcher, the fault filter's rate decision, and the config
// selector's weighted-cluster pick and hash fallback. Wrapping math/rand
// behind a small interface lets tests supply deterministic sequences
// instead of real entropy.
package xrand

import (
	"math/rand"
	"sync"
)

// Source is the subset of *rand.Rand this module depends on.
type Source interface {
	// Int63n returns a uniform random int64 in [0, n). Panics if n <= 0.
	Int63n(n int64) int64
	// Uint64 returns a uniform random uint64 across the full range, used as
	// the hash fallback when no hash policy produces a value.
	Uint64() uint64
}

// global is the process-default source, seeded from the runtime's entropy
// pool and safe for concurrent use.
var global Source = &lockedSource{r: rand.New(rand.NewSource(rand.Int63()))}

// Global returns the process-wide default random source.
func Global() Source { return global }

// lockedSource serializes access to a *rand.Rand, which is not itself
// concurrency-safe.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedSource) Int63n(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Int63n(n)
}

func (l *lockedSource) Uint64() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Uint64()
}
