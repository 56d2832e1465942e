package evaluation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/metrics"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/ranking"
	"github.com/ricesearch/rice-eval/internal/setscore"
	"github.com/ricesearch/rice-eval/internal/snapshot"
)

const eventSource = "rice-eval.runner"

// Runner scores runs in parallel shards. Every shard's statistics are
// published on the bus, and the merged statistics of a run are saved to the
// snapshot store.
type Runner struct {
	bus       bus.Bus
	store     snapshot.Store
	log       *logger.Logger
	maxN      int
	maxNLimit int
	workers   int
	shardSize int
	measures  []ranking.Measure
	metrics   *metrics.Metrics

	progress rate.Sometimes
	now      func() time.Time
}

// NewRunner creates a runner with the given evaluation defaults.
func NewRunner(cfg config.EvalConfig, b bus.Bus, store snapshot.Store, log *logger.Logger) (*Runner, error) {
	measures, err := ranking.ParseMeasures(cfg.Measures)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = bus.NewMemoryBus(log)
	}
	if store == nil {
		store = snapshot.NewMemoryStore()
	}
	if log == nil {
		log = logger.Discard()
	}
	maxNLimit := cfg.MaxNLimit
	if maxNLimit < 1 || maxNLimit > ranking.MaxCutoffLimit {
		maxNLimit = ranking.MaxCutoffLimit
	}

	return &Runner{
		bus:       b,
		store:     store,
		log:       log,
		maxN:      max(cfg.MaxN, 1),
		maxNLimit: maxNLimit,
		workers:   max(cfg.Workers, 1),
		shardSize: max(cfg.ShardSize, 1),
		measures:  measures,
		progress:  rate.Sometimes{First: 1, Interval: 2 * time.Second},
		now:       time.Now,
	}, nil
}

// SetMetrics sets the metrics recorder for this runner.
func (r *Runner) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// RankOptions tunes one ranking evaluation. Zero values fall back to the
// runner defaults.
type RankOptions struct {
	MaxN     int
	Measures []ranking.Measure
}

// RankingOutcome is the merged result of a ranking evaluation.
type RankingOutcome struct {
	RunID    string
	Shards   int
	Measures []ranking.Measure
	Stats    ranking.Stats
	Result   ranking.Result
}

// SetsOutcome is the merged result of a set evaluation.
type SetsOutcome struct {
	RunID  string
	Shards int
	Stats  setscore.Stats
	Result setscore.Result
}

// Rank scores every query of run against qrels. Queries without judgments
// count as rankings with no relevant documents; judged queries missing from
// the run are ignored.
func (r *Runner) Rank(ctx context.Context, run *Run, qrels Qrels, opts RankOptions) (outcome *RankingOutcome, err error) {
	if run == nil {
		return nil, errors.InvalidArgument("no run supplied")
	}

	finish := r.metrics.StartEvaluation(string(snapshot.KindRanking))
	defer func() { finish(len(run.Order), err) }()

	measures := opts.Measures
	if len(measures) == 0 {
		measures = r.measures
	}
	maxN := opts.MaxN
	if maxN == 0 {
		maxN = max(r.maxN, ranking.MaxCutoff(measures))
	}
	if maxN > r.maxNLimit {
		return nil, errors.InvalidArgument("max_n %d exceeds the limit of %d", maxN, r.maxNLimit)
	}
	if cut := ranking.MaxCutoff(measures); cut > maxN {
		return nil, errors.InvalidArgument("measure cutoff %d exceeds max_n %d", cut, maxN)
	}

	final, err := ranking.NewEvaluator[string](maxN)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	shards := shard(run.Order, r.shardSize)
	log := r.log.WithContext(ctx).WithRun(runID)

	snap := snapshot.Snapshot{
		RunID:     runID,
		Kind:      snapshot.KindRanking,
		Status:    snapshot.StatusRunning,
		Shards:    len(shards),
		Measures:  measureNames(measures),
		CreatedAt: r.now(),
	}
	if err := r.save(ctx, snap, final.Stats(), nil); err != nil {
		return nil, err
	}

	log.Info("Ranking evaluation started", "queries", len(run.Order), "shards", len(shards), "max_n", maxN)

	evaluators := make([]*ranking.Evaluator[string], len(shards))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, queries := range shards {
		g.Go(func() error {
			start := time.Now()
			ev, err := ranking.NewEvaluator[string](maxN)
			if err != nil {
				return err
			}
			for _, q := range queries {
				if err := gctx.Err(); err != nil {
					return err
				}
				ev.AddGraded(run.Rankings[q], qrels[q])
			}
			evaluators[i] = ev
			r.metrics.RecordShard(string(snapshot.KindRanking), time.Since(start))

			stats := ev.Stats()
			if err := r.publish(gctx, bus.TopicRankingPartial, Partial{
				RunID:   runID,
				Kind:    snapshot.KindRanking,
				Shard:   i,
				Shards:  len(shards),
				Ranking: &stats,
			}); err != nil {
				return err
			}

			n := done.Add(1)
			r.progress.Do(func() {
				log.WithShard(i).Info("Scoring progress", "shards_done", n, "shards", len(shards))
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.fail(ctx, snap, err, final.Stats(), nil)
		return nil, err
	}

	for _, ev := range evaluators {
		if err := final.Merge(ev); err != nil {
			r.fail(ctx, snap, err, final.Stats(), nil)
			return nil, err
		}
	}

	stats := final.Stats()
	snap.Status = snapshot.StatusDone
	if err := r.save(ctx, snap, stats, nil); err != nil {
		return nil, err
	}

	log.Info("Ranking evaluation finished", "rankings", stats.Rankings, "judged", stats.Judged)

	return &RankingOutcome{
		RunID:    runID,
		Shards:   len(shards),
		Measures: measures,
		Stats:    stats,
		Result:   final.Result(),
	}, nil
}

// Sets scores the predicted sets of every document against the gold sets.
// Documents present on only one side are scored against nothing.
func (r *Runner) Sets(ctx context.Context, gold, test *SetCollection) (outcome *SetsOutcome, err error) {
	if gold == nil || test == nil {
		return nil, errors.InvalidArgument("both gold and test sets are required")
	}

	keys := unionKeys(gold.Order, test.Order)
	finish := r.metrics.StartEvaluation(string(snapshot.KindSets))
	defer func() { finish(len(keys), err) }()
	runID := uuid.NewString()
	shards := shard(keys, r.shardSize)
	log := r.log.WithContext(ctx).WithRun(runID)
	final := setscore.NewEvaluator[string]()

	snap := snapshot.Snapshot{
		RunID:     runID,
		Kind:      snapshot.KindSets,
		Status:    snapshot.StatusRunning,
		Shards:    len(shards),
		CreatedAt: r.now(),
	}
	empty := final.Stats()
	if err := r.save(ctx, snap, ranking.Stats{}, &empty); err != nil {
		return nil, err
	}

	log.Info("Set evaluation started", "documents", len(keys), "shards", len(shards))

	evaluators := make([]*setscore.Evaluator[string], len(shards))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, docs := range shards {
		g.Go(func() error {
			start := time.Now()
			ev := setscore.NewEvaluator[string]()
			for _, d := range docs {
				if err := gctx.Err(); err != nil {
					return err
				}
				ev.Add(gold.Sets[d], test.Sets[d])
			}
			evaluators[i] = ev
			r.metrics.RecordShard(string(snapshot.KindSets), time.Since(start))

			stats := ev.Stats()
			if err := r.publish(gctx, bus.TopicSetsPartial, Partial{
				RunID:  runID,
				Kind:   snapshot.KindSets,
				Shard:  i,
				Shards: len(shards),
				Sets:   &stats,
			}); err != nil {
				return err
			}

			n := done.Add(1)
			r.progress.Do(func() {
				log.WithShard(i).Info("Scoring progress", "shards_done", n, "shards", len(shards))
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.fail(ctx, snap, err, ranking.Stats{}, &empty)
		return nil, err
	}

	for _, ev := range evaluators {
		final.Merge(ev)
	}

	stats := final.Stats()
	snap.Status = snapshot.StatusDone
	if err := r.save(ctx, snap, ranking.Stats{}, &stats); err != nil {
		return nil, err
	}

	log.Info("Set evaluation finished", "test_sets", stats.Test, "gold_sets", stats.Gold)

	return &SetsOutcome{
		RunID:  runID,
		Shards: len(shards),
		Stats:  stats,
		Result: final.Result(),
	}, nil
}

func (r *Runner) publish(ctx context.Context, topic string, p Partial) error {
	event, err := bus.NewEvent(topic, eventSource, p.RunID, p)
	if err != nil {
		return err
	}
	if err := r.bus.Publish(ctx, topic, event); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "publishing partial statistics", err)
	}
	return nil
}

// save stores snap with the statistics matching its kind.
func (r *Runner) save(ctx context.Context, snap snapshot.Snapshot, rs ranking.Stats, ss *setscore.Stats) error {
	snap.UpdatedAt = r.now()
	switch snap.Kind {
	case snapshot.KindRanking:
		snap.Ranking = &rs
	case snapshot.KindSets:
		snap.Sets = ss
	}
	return r.store.Save(context.WithoutCancel(ctx), snap)
}

// fail records a failed run. Storage errors are logged, not returned, so the
// original failure reaches the caller.
func (r *Runner) fail(ctx context.Context, snap snapshot.Snapshot, cause error, rs ranking.Stats, ss *setscore.Stats) {
	snap.Status = snapshot.StatusFailed
	snap.Error = cause.Error()
	if err := r.save(ctx, snap, rs, ss); err != nil {
		r.log.WithRun(snap.RunID).WithError(err).Error("Failed to record run failure")
	}
}

// shard splits keys into consecutive chunks of at most size elements.
func shard(keys []string, size int) [][]string {
	var shards [][]string
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		shards = append(shards, keys[start:end])
	}
	return shards
}

// unionKeys returns a's keys followed by the keys only b has.
func unionKeys(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, k := range list {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func measureNames(measures []ranking.Measure) []string {
	names := make([]string, len(measures))
	for i, m := range measures {
		names[i] = m.String()
	}
	return names
}
