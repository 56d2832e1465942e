// Package mergelock provides the mutex embedded by mergeable evaluators.
//
// Every Guard gets a process-wide sequence number the first time it takes
// part in a pair lock. Pair always locks the lower number first, so A
// merging B and B merging A on different goroutines cannot wait on each
// other.
package mergelock

import (
	"sync"
	"sync/atomic"
)

var sequence atomic.Uint64

// Guard is a mutex with a stable identity. The zero value is ready to use.
type Guard struct {
	mu   sync.Mutex
	once sync.Once
	id   uint64
}

// Lock locks the guard.
func (g *Guard) Lock() { g.mu.Lock() }

// Unlock unlocks the guard.
func (g *Guard) Unlock() { g.mu.Unlock() }

// ID returns the guard's position in the global lock order.
func (g *Guard) ID() uint64 {
	g.once.Do(func() {
		g.id = sequence.Add(1)
	})
	return g.id
}

// Pair locks a and b in global order and returns the matching unlock. A
// guard paired with itself is locked once.
func Pair(a, b *Guard) (unlock func()) {
	if a == b {
		a.Lock()
		return a.Unlock
	}

	first, second := a, b
	if b.ID() < a.ID() {
		first, second = b, a
	}

	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
