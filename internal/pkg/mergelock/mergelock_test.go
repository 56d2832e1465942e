package mergelock

import (
	"sync"
	"testing"
	"time"
)

func TestGuard_IDStable(t *testing.T) {
	var a, b Guard

	idA := a.ID()
	idB := b.ID()

	if idA == idB {
		t.Fatalf("distinct guards share id %d", idA)
	}
	if a.ID() != idA {
		t.Errorf("ID() changed from %d to %d", idA, a.ID())
	}
}

func TestPair_Self(t *testing.T) {
	var g Guard

	unlock := Pair(&g, &g)
	unlock()

	// Must be unlocked again.
	g.Lock()
	g.Unlock()
}

func TestPair_OppositeOrdersDoNotDeadlock(t *testing.T) {
	var a, b Guard
	var wg sync.WaitGroup

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				unlock := Pair(&a, &b)
				unlock()
			}()
			go func() {
				defer wg.Done()
				unlock := Pair(&b, &a)
				unlock()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pair locking deadlocked")
	}
}
