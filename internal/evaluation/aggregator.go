package evaluation

import (
	"context"
	"sync"
	"time"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/metrics"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/ranking"
	"github.com/ricesearch/rice-eval/internal/setscore"
	"github.com/ricesearch/rice-eval/internal/snapshot"
)

// Aggregator listens for partial statistics on the bus and merges them into
// one live evaluator per run.
type Aggregator struct {
	mu      sync.Mutex
	runs    map[string]*liveRun
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type liveRun struct {
	kind      snapshot.Kind
	shards    int
	received  map[int]bool
	ranking   *ranking.Evaluator[string]
	sets      *setscore.Evaluator[string]
	createdAt time.Time
	updatedAt time.Time
}

// NewAggregator creates an aggregator with no runs.
func NewAggregator(log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.Discard()
	}
	return &Aggregator{
		runs: make(map[string]*liveRun),
		log:  log,
		now:  time.Now,
	}
}

// SetMetrics sets the metrics recorder for this aggregator.
func (a *Aggregator) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

// Subscribe registers the aggregator on both partial topics.
func (a *Aggregator) Subscribe(ctx context.Context, b bus.Bus) error {
	if err := b.Subscribe(ctx, bus.TopicRankingPartial, a.Handle); err != nil {
		return err
	}
	return b.Subscribe(ctx, bus.TopicSetsPartial, a.Handle)
}

// Handle merges one partial event. A shard delivered twice is counted once.
func (a *Aggregator) Handle(ctx context.Context, event bus.Event) error {
	var p Partial
	if err := event.Decode(&p); err != nil {
		return err
	}
	if p.RunID == "" {
		p.RunID = event.CorrelationID
	}
	if p.RunID == "" {
		a.metrics.RecordAggregation(string(p.Kind), metrics.OutcomeRejected)
		return errors.InvalidArgument("partial statistics without a run ID")
	}

	outcome, err := a.merge(p)
	if err != nil {
		outcome = metrics.OutcomeRejected
	}
	a.metrics.RecordAggregation(string(p.Kind), outcome)
	return err
}

func (a *Aggregator) merge(p Partial) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	run, err := a.runFor(p)
	if err != nil {
		return "", err
	}
	if run.received[p.Shard] {
		a.log.WithRun(p.RunID).Debug("Ignoring duplicate shard", "shard", p.Shard)
		return metrics.OutcomeDuplicate, nil
	}

	switch p.Kind {
	case snapshot.KindRanking:
		if p.Ranking == nil {
			return "", errors.InvalidArgument("ranking partial without statistics")
		}
		if err := run.ranking.AddStats(*p.Ranking); err != nil {
			return "", err
		}
	case snapshot.KindSets:
		if p.Sets == nil {
			return "", errors.InvalidArgument("set partial without statistics")
		}
		if err := run.sets.AddStats(*p.Sets); err != nil {
			return "", err
		}
	}

	run.received[p.Shard] = true
	run.shards = max(run.shards, p.Shards)
	run.updatedAt = a.now()
	return metrics.OutcomeMerged, nil
}

// runFor returns the live run for p, creating it on first sight.
func (a *Aggregator) runFor(p Partial) (*liveRun, error) {
	run, ok := a.runs[p.RunID]
	if ok {
		if run.kind != p.Kind {
			return nil, errors.InvalidArgument("run %s mixes %s and %s statistics", p.RunID, run.kind, p.Kind)
		}
		return run, nil
	}

	run = &liveRun{
		kind:      p.Kind,
		received:  make(map[int]bool),
		createdAt: a.now(),
	}
	switch p.Kind {
	case snapshot.KindRanking:
		if p.Ranking == nil {
			return nil, errors.InvalidArgument("ranking partial without statistics")
		}
		ev, err := ranking.NewEvaluator[string](p.Ranking.MaxN)
		if err != nil {
			return nil, err
		}
		run.ranking = ev
	case snapshot.KindSets:
		run.sets = setscore.NewEvaluator[string]()
	default:
		return nil, errors.InvalidArgument("unknown partial kind %q", p.Kind)
	}

	a.runs[p.RunID] = run
	return run, nil
}

// Progress returns what has been merged so far for a run.
func (a *Aggregator) Progress(runID string) (snapshot.Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	run, ok := a.runs[runID]
	if !ok {
		return snapshot.Snapshot{}, false
	}

	status := snapshot.StatusRunning
	if run.shards > 0 && len(run.received) >= run.shards {
		status = snapshot.StatusDone
	}

	snap := snapshot.Snapshot{
		RunID:     runID,
		Kind:      run.kind,
		Status:    status,
		Shards:    run.shards,
		CreatedAt: run.createdAt,
		UpdatedAt: run.updatedAt,
	}
	switch run.kind {
	case snapshot.KindRanking:
		stats := run.ranking.Stats()
		snap.Ranking = &stats
	case snapshot.KindSets:
		stats := run.sets.Stats()
		snap.Sets = &stats
	}
	return snap, true
}

// Received reports how many distinct shards of a run have been merged.
func (a *Aggregator) Received(runID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if run, ok := a.runs[runID]; ok {
		return len(run.received)
	}
	return 0
}

// Prune drops runs that have not received a partial since before cutoff
// and returns how many were dropped. Finished runs are in the snapshot
// store by then.
func (a *Aggregator) Prune(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	dropped := 0
	for id, run := range a.runs {
		last := run.updatedAt
		if last.IsZero() {
			last = run.createdAt
		}
		if last.Before(cutoff) {
			delete(a.runs, id)
			dropped++
		}
	}
	return dropped
}

// Forget drops a run.
func (a *Aggregator) Forget(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.runs, runID)
}
