package snapshot

import (
	"context"
	"sort"
	"sync"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Snapshot)}
}

// Save stores a copy of s.
func (m *MemoryStore) Save(ctx context.Context, s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.RunID] = clone(s)
	return nil
}

// Load returns a copy of the stored snapshot.
func (m *MemoryStore) Load(ctx context.Context, runID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.items[runID]
	if !ok {
		return Snapshot{}, errors.NotFoundError("run " + runID)
	}
	return clone(s), nil
}

// List returns run IDs ordered by creation time, newest first.
func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(m.items))
	for _, s := range m.items {
		snaps = append(snaps, s)
	}
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
		}
		return snaps[i].RunID < snaps[j].RunID
	})

	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.RunID
	}
	return ids, nil
}

// Delete removes a run.
func (m *MemoryStore) Delete(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, runID)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// clone detaches the slices and pointers of s from the caller.
func clone(s Snapshot) Snapshot {
	out := s
	out.Measures = append([]string(nil), s.Measures...)
	if s.Ranking != nil {
		r := s.Ranking.Clone()
		out.Ranking = &r
	}
	if s.Sets != nil {
		st := *s.Sets
		out.Sets = &st
	}
	return out
}
