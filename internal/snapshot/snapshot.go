// Package snapshot persists the statistics of evaluation runs so finished
// and in-progress runs can be looked up by ID.
package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/ranking"
	"github.com/ricesearch/rice-eval/internal/setscore"
)

// Kind identifies which engine produced a run.
type Kind string

// Run kinds.
const (
	KindRanking Kind = "ranking"
	KindSets    Kind = "sets"
)

// Status is the lifecycle state of a run.
type Status string

// Run states.
const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Snapshot is the stored state of one run. Only sufficient statistics are
// kept; results are derived on read.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Shards    int       `json:"shards"`
	Measures  []string  `json:"measures,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Ranking *ranking.Stats  `json:"ranking,omitempty"`
	Sets    *setscore.Stats `json:"sets,omitempty"`
}

// Validate checks that the snapshot carries the statistics its kind needs.
func (s Snapshot) Validate() error {
	if s.RunID == "" {
		return errors.ValidationError("snapshot run ID is required")
	}
	switch s.Kind {
	case KindRanking:
		if s.Ranking == nil {
			return errors.ValidationError("ranking snapshot without ranking statistics")
		}
		return s.Ranking.Validate()
	case KindSets:
		if s.Sets == nil {
			return errors.ValidationError("set snapshot without set statistics")
		}
		return s.Sets.Validate()
	default:
		return errors.ValidationError(fmt.Sprintf("unknown snapshot kind: %s", s.Kind))
	}
}

// Store persists snapshots.
type Store interface {
	// Save creates or replaces the snapshot of a run.
	Save(ctx context.Context, s Snapshot) error

	// Load returns the snapshot of a run, or a NOT_FOUND error.
	Load(ctx context.Context, runID string) (Snapshot, error)

	// List returns the IDs of stored runs, most recent first.
	List(ctx context.Context) ([]string, error)

	// Delete removes a run. Deleting an unknown run is not an error.
	Delete(ctx context.Context, runID string) error

	// Close releases resources.
	Close() error
}

// NewStore creates a Store based on the configuration.
func NewStore(cfg config.SnapshotConfig) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(RedisConfig{
			URL:    cfg.RedisURL,
			Prefix: cfg.Prefix,
			TTL:    cfg.TTL,
		})
	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown snapshot type: %s", cfg.Type))
	}
}
