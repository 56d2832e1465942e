// Package setscore scores predicted sets against gold sets under four
// matching regimes:
//
//   - exact: a predicted set counts only if it equals a gold set with the
//     same label;
//   - overlap: a set counts if it shares any item with a same-labelled set
//     on the other side;
//   - intersection: a set earns the fraction of its items covered by
//     same-labelled sets on the other side;
//   - aligned: sets are paired one to one by greedy alignment and each pair
//     earns its intersection relative to each side.
//
// Evaluators accumulate documents incrementally and merge with other
// evaluators, Results or Stats.
package setscore

import (
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/mergelock"
)

// Regime names one of the four matching regimes.
type Regime string

// Matching regimes.
const (
	Exact        Regime = "exact"
	Overlap      Regime = "overlap"
	Intersection Regime = "intersection"
	Aligned      Regime = "aligned"
)

// Regimes lists every regime in report order.
var Regimes = []Regime{Exact, Overlap, Intersection, Aligned}

// PRF is a precision, recall and F-measure triple.
type PRF struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F         float64 `json:"f"`
}

// Result is an immutable snapshot of set scores.
type Result struct {
	NumTest int `json:"num_test"`
	NumGold int `json:"num_gold"`

	Exact        PRF `json:"exact"`
	Overlap      PRF `json:"overlap"`
	Intersection PRF `json:"intersection"`
	Aligned      PRF `json:"aligned"`
}

// Get returns the scores of one regime.
func (r Result) Get(regime Regime) (PRF, error) {
	switch regime {
	case Exact:
		return r.Exact, nil
	case Overlap:
		return r.Overlap, nil
	case Intersection:
		return r.Intersection, nil
	case Aligned:
		return r.Aligned, nil
	default:
		return PRF{}, errors.InvalidArgument("unknown regime %q", regime)
	}
}

// Stats turns the scores back into sums by weighting precision with the
// number of predicted sets and recall with the number of gold sets.
func (r Result) Stats() Stats {
	test := float64(r.NumTest)
	gold := float64(r.NumGold)
	return Stats{
		Test:          test,
		Gold:          gold,
		Exact:         r.Exact.Precision * test,
		OverlapP:      r.Overlap.Precision * test,
		OverlapR:      r.Overlap.Recall * gold,
		IntersectionP: r.Intersection.Precision * test,
		IntersectionR: r.Intersection.Recall * gold,
		AlignedP:      r.Aligned.Precision * test,
		AlignedR:      r.Aligned.Recall * gold,
	}
}

// Average combines finished results as if all their documents had gone
// through one evaluator.
func Average(results ...Result) (Result, error) {
	if len(results) == 0 {
		return Result{}, errors.InvalidArgument("no measure supplied")
	}

	var total Stats
	for _, r := range results {
		s := r.Stats()
		if err := s.Validate(); err != nil {
			return Result{}, err
		}
		total = total.Merge(s)
	}
	return total.Result(), nil
}

// Evaluator accumulates set statistics. It is safe for concurrent use.
type Evaluator[T comparable] struct {
	guard  mergelock.Guard
	stats  Stats
	cached *Result
}

// NewEvaluator creates an empty evaluator.
func NewEvaluator[T comparable]() *Evaluator[T] {
	return &Evaluator[T]{}
}

// Add scores the predicted sets of one document against its gold sets.
func (e *Evaluator[T]) Add(gold, test []Labeled[T]) *Evaluator[T] {
	obs := observe(gold, test)

	e.guard.Lock()
	defer e.guard.Unlock()
	e.stats = e.stats.Merge(obs)
	e.cached = nil
	return e
}

// AddStats merges raw statistics. On error the evaluator is unchanged.
func (e *Evaluator[T]) AddStats(s Stats) error {
	if err := s.Validate(); err != nil {
		return err
	}

	e.guard.Lock()
	defer e.guard.Unlock()
	e.stats = e.stats.Merge(s)
	e.cached = nil
	return nil
}

// AddResult merges a finished result.
func (e *Evaluator[T]) AddResult(r Result) error {
	return e.AddStats(r.Stats())
}

// Merge adds everything accumulated by other, locking both evaluators in
// a fixed global order.
func (e *Evaluator[T]) Merge(other *Evaluator[T]) {
	unlock := mergelock.Pair(&e.guard, &other.guard)
	defer unlock()

	e.stats = e.stats.Merge(other.stats)
	e.cached = nil
}

// Stats returns the accumulated statistics.
func (e *Evaluator[T]) Stats() Stats {
	e.guard.Lock()
	defer e.guard.Unlock()
	return e.stats
}

// Result returns the scores, computed lazily and reused until the next
// mutation.
func (e *Evaluator[T]) Result() Result {
	e.guard.Lock()
	defer e.guard.Unlock()

	if e.cached == nil {
		r := e.stats.Result()
		e.cached = &r
	}
	return *e.cached
}
