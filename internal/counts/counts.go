// Package counts holds true/false positive/negative tallies and the
// precision, recall and F-measure derived from them.
//
// Precision and recall are 1.0 when their denominators are zero. The
// F-measure is 0.0 whenever precision or recall is 0.0; NaN inputs still
// propagate as NaN.
package counts

import (
	"fmt"
	"sync"
)

// Stats is an immutable snapshot of classification counts. Counts are
// float64 so that fractional credit (partial overlaps) can be tallied the
// same way as whole matches.
type Stats struct {
	TP float64 `json:"tp"`
	FP float64 `json:"fp"`
	FN float64 `json:"fn"`
	TN float64 `json:"tn"`
}

// Precision returns tp/(tp+fp), or 1.0 when tp and fp are both zero.
func (s Stats) Precision() float64 {
	if s.TP == 0 && s.FP == 0 {
		return 1.0
	}
	return s.TP / (s.TP + s.FP)
}

// Recall returns tp/(tp+fn), or 1.0 when tp and fn are both zero.
func (s Stats) Recall() float64 {
	if s.TP == 0 && s.FN == 0 {
		return 1.0
	}
	return s.TP / (s.TP + s.FN)
}

// F returns the weighted harmonic mean 1/(alpha/P + (1-alpha)/R).
func (s Stats) F(alpha float64) float64 {
	return FMeasure(s.Precision(), s.Recall(), alpha)
}

// F1 is F(0.5).
func (s Stats) F1() float64 {
	return s.F(0.5)
}

// Accuracy returns (tp+tn)/(tp+fp+fn+tn), or 1.0 when every count is zero.
func (s Stats) Accuracy() float64 {
	total := s.TP + s.FP + s.FN + s.TN
	if total == 0 {
		return 1.0
	}
	return (s.TP + s.TN) / total
}

// Add returns the element-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		TP: s.TP + o.TP,
		FP: s.FP + o.FP,
		FN: s.FN + o.FN,
		TN: s.TN + o.TN,
	}
}

// String renders the counts and derived measures on one line.
func (s Stats) String() string {
	return fmt.Sprintf("tp=%g fp=%g fn=%g p=%.4f r=%.4f f1=%.4f",
		s.TP, s.FP, s.FN, s.Precision(), s.Recall(), s.F1())
}

// Sum adds any number of snapshots. The result does not depend on the
// order of the arguments beyond floating point rounding.
func Sum(stats ...Stats) Stats {
	var total Stats
	for _, s := range stats {
		total = total.Add(s)
	}
	return total
}

// FMeasure combines a precision and a recall with weight alpha on
// precision. It returns 0.0 when either input is 0.0.
func FMeasure(precision, recall, alpha float64) float64 {
	if precision == 0 || recall == 0 {
		return 0.0
	}
	return 1.0 / (alpha/precision + (1-alpha)/recall)
}

// Accumulator is a mutable, goroutine-safe tally that produces Stats on
// demand.
type Accumulator struct {
	mu    sync.Mutex
	stats Stats
}

// AddTP adds n true positives.
func (a *Accumulator) AddTP(n float64) {
	a.mu.Lock()
	a.stats.TP += n
	a.mu.Unlock()
}

// AddFP adds n false positives.
func (a *Accumulator) AddFP(n float64) {
	a.mu.Lock()
	a.stats.FP += n
	a.mu.Unlock()
}

// AddFN adds n false negatives.
func (a *Accumulator) AddFN(n float64) {
	a.mu.Lock()
	a.stats.FN += n
	a.mu.Unlock()
}

// AddTN adds n true negatives.
func (a *Accumulator) AddTN(n float64) {
	a.mu.Lock()
	a.stats.TN += n
	a.mu.Unlock()
}

// AddCounts merges a snapshot into the accumulator.
func (a *Accumulator) AddCounts(o Stats) {
	a.mu.Lock()
	a.stats = a.stats.Add(o)
	a.mu.Unlock()
}

// Stats returns the current snapshot.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Reset zeroes every count.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.stats = Stats{}
	a.mu.Unlock()
}
