package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/ranking"
	"github.com/ricesearch/rice-eval/internal/setscore"
)

func rankingSnapshot(t *testing.T, id string, created time.Time) Snapshot {
	t.Helper()
	e, err := ranking.NewEvaluator[string](3)
	if err != nil {
		t.Fatal(err)
	}
	e.AddBinary([]string{"a", "b", "c"}, []string{"a", "c"})
	stats := e.Stats()
	return Snapshot{
		RunID:     id,
		Kind:      KindRanking,
		Status:    StatusDone,
		Shards:    1,
		Measures:  []string{"p@1", "map"},
		CreatedAt: created,
		UpdatedAt: created,
		Ranking:   &stats,
	}
}

func TestSnapshot_Validate(t *testing.T) {
	good := rankingSnapshot(t, "run-1", time.Now())
	sets := setscore.Stats{Test: 1, Gold: 1, Exact: 1}

	tests := []struct {
		name    string
		snap    Snapshot
		wantErr bool
	}{
		{"ranking", good, false},
		{"sets", Snapshot{RunID: "s", Kind: KindSets, Sets: &sets}, false},
		{"missing id", Snapshot{Kind: KindSets, Sets: &sets}, true},
		{"missing ranking stats", Snapshot{RunID: "r", Kind: KindRanking}, true},
		{"missing set stats", Snapshot{RunID: "s", Kind: KindSets}, true},
		{"bad ranking stats", Snapshot{RunID: "r", Kind: KindRanking, Ranking: &ranking.Stats{MaxN: 2}}, true},
		{"unknown kind", Snapshot{RunID: "x", Kind: "other"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	snap := rankingSnapshot(t, "run-1", time.Now())
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	snap.Ranking.PrecisionAt[0] = 42
	snap.Measures[0] = "changed"

	got, err := store.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Ranking.PrecisionAt[0] != 1 {
		t.Errorf("stored PrecisionAt[0] = %f, want 1", got.Ranking.PrecisionAt[0])
	}
	if got.Measures[0] != "p@1" {
		t.Errorf("stored Measures[0] = %s, want p@1", got.Measures[0])
	}

	r := got.Ranking.Result()
	if r.MRR != 1 {
		t.Errorf("MRR from stored stats = %f, want 1", r.MRR)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Load(context.Background(), "missing"); !errors.IsNotFound(err) {
		t.Errorf("Load(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestMemoryStore_RejectsInvalid(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Save(context.Background(), Snapshot{RunID: "x", Kind: KindRanking}); err == nil {
		t.Error("Save() of invalid snapshot should fail")
	}
	if ids, _ := store.List(context.Background()); len(ids) != 0 {
		t.Errorf("List() = %v, want empty", ids)
	}
}

func TestMemoryStore_ListAndDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		if err := store.Save(ctx, rankingSnapshot(t, id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"new", "mid", "old"}
	if len(ids) != len(want) {
		t.Fatalf("List() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, ids[i], want[i])
		}
	}

	if err := store.Delete(ctx, "mid"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete(unknown) error = %v", err)
	}
	if _, err := store.Load(ctx, "mid"); !errors.IsNotFound(err) {
		t.Errorf("Load(deleted) error = %v, want NOT_FOUND", err)
	}
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(config.SnapshotConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("NewStore(memory) error = %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("NewStore(memory) = %T, want *MemoryStore", store)
	}

	if _, err := NewStore(config.SnapshotConfig{Type: "postgres"}); err == nil {
		t.Error("NewStore(postgres) should fail")
	}
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{URL: "invalid://url"})
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestNewRedisStore_ConnectionFailure(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{URL: "redis://localhost:9999"})
	if err == nil {
		t.Fatal("expected error for connection failure")
	}
}

func TestRedisStore_SaveLoadList(t *testing.T) {
	// Skip if Redis not available
	store, err := NewRedisStore(RedisConfig{
		URL:    "redis://localhost:6379/15",
		Prefix: "rice-eval:test:",
		TTL:    time.Minute,
	})
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer store.Close()

	ctx := context.Background()
	defer store.Delete(ctx, "redis-run")

	snap := rankingSnapshot(t, "redis-run", time.Now())
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "redis-run")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Kind != KindRanking || got.Ranking == nil || got.Ranking.Rankings != 1 {
		t.Errorf("Load() = %+v", got)
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	found := false
	for _, id := range ids {
		if id == "redis-run" {
			found = true
		}
	}
	if !found {
		t.Errorf("List() = %v, missing redis-run", ids)
	}

	if _, err := store.Load(ctx, "no-such-run"); !errors.IsNotFound(err) {
		t.Errorf("Load(missing) error = %v, want NOT_FOUND", err)
	}
}
