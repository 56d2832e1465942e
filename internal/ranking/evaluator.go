// Package ranking scores ranked lists against relevance judgments:
// precision at cutoffs, MRR, NDCG, alternate NDCG and MAP.
//
// An Evaluator accumulates rankings incrementally and merges with other
// evaluators, finished Results or raw Stats, so corpora can be scored in
// shards and combined.
package ranking

import (
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/mergelock"
)

// Evaluator accumulates ranking statistics. It is safe for concurrent use.
type Evaluator[T comparable] struct {
	guard  mergelock.Guard
	stats  Stats
	cached *Result
}

// NewEvaluator creates an evaluator tracking cutoffs 1..maxN.
func NewEvaluator[T comparable](maxN int) (*Evaluator[T], error) {
	if err := validateMaxN(maxN); err != nil {
		return nil, err
	}
	return &Evaluator[T]{stats: NewStats(maxN)}, nil
}

// MaxN returns the largest tracked cutoff.
func (e *Evaluator[T]) MaxN() int {
	return e.stats.MaxN
}

// AddBinary scores a ranking against a set of relevant items, each with
// gain 1.
func (e *Evaluator[T]) AddBinary(ranked []T, relevant []T) {
	grades := make(map[T]float64, len(relevant))
	for _, item := range relevant {
		grades[item] = 1.0
	}
	e.AddGraded(ranked, grades)
}

// AddGraded scores a ranking against graded judgments. Items with a
// positive grade are relevant.
func (e *Evaluator[T]) AddGraded(ranked []T, grades map[T]float64) {
	obs := observe(e.stats.MaxN, ranked, grades)

	e.guard.Lock()
	defer e.guard.Unlock()
	e.stats.absorb(obs)
	e.cached = nil
}

// AddStats merges raw statistics. They must cover at least MaxN cutoffs;
// extra cutoffs are ignored. On error the evaluator is unchanged.
func (e *Evaluator[T]) AddStats(s Stats) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.MaxN < e.stats.MaxN {
		return errors.InvalidArgument("statistics cover %d cutoffs, evaluator needs %d", s.MaxN, e.stats.MaxN)
	}

	e.guard.Lock()
	defer e.guard.Unlock()
	e.stats.absorb(s)
	e.cached = nil
	return nil
}

// AddResult merges a finished result, reweighting its averages by the
// number of rankings behind them.
func (e *Evaluator[T]) AddResult(r Result) error {
	if err := r.validate(); err != nil {
		return err
	}
	return e.AddStats(r.Stats())
}

// Merge adds everything accumulated by other. Both evaluators are locked
// in a fixed global order, so concurrent a.Merge(b) and b.Merge(a) are safe.
func (e *Evaluator[T]) Merge(other *Evaluator[T]) error {
	unlock := mergelock.Pair(&e.guard, &other.guard)
	defer unlock()

	if other.stats.MaxN < e.stats.MaxN {
		return errors.InvalidArgument("cannot merge evaluator with max_n %d into max_n %d",
			other.stats.MaxN, e.stats.MaxN)
	}

	e.stats.absorb(other.stats.Clone())
	e.cached = nil
	return nil
}

// Stats returns a copy of the accumulated statistics.
func (e *Evaluator[T]) Stats() Stats {
	e.guard.Lock()
	defer e.guard.Unlock()
	return e.stats.Clone()
}

// Result returns the averaged scores. The snapshot is computed lazily and
// reused until the next mutation.
func (e *Evaluator[T]) Result() Result {
	e.guard.Lock()
	defer e.guard.Unlock()

	if e.cached == nil {
		r := e.stats.Result()
		e.cached = &r
	}
	return e.cached.clone()
}

func (r Result) validate() error {
	if r.MaxN < 1 {
		return errors.InvalidArgument("result max_n must be positive, got %d", r.MaxN)
	}
	n := r.MaxN
	if len(r.RankingsAt) != n || len(r.PrecisionAt) != n || len(r.NDCGAt) != n ||
		len(r.AltNDCGAt) != n || len(r.MAPAt) != n {
		return errors.InvalidArgument("result per-cutoff values must have %d entries", n)
	}
	return nil
}
