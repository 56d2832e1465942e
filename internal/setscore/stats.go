package setscore

import (
	"math"

	"github.com/ricesearch/rice-eval/internal/align"
	"github.com/ricesearch/rice-eval/internal/counts"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Stats are the running sums behind a set Result. Test and Gold count the
// predicted and gold sets; every other field is a precision (P) or recall
// (R) numerator of one regime, divided by Test or Gold respectively.
type Stats struct {
	Test float64 `json:"test"`
	Gold float64 `json:"gold"`

	Exact         float64 `json:"exact"`
	OverlapP      float64 `json:"overlap_p"`
	OverlapR      float64 `json:"overlap_r"`
	IntersectionP float64 `json:"intersection_p"`
	IntersectionR float64 `json:"intersection_r"`
	AlignedP      float64 `json:"aligned_p"`
	AlignedR      float64 `json:"aligned_r"`
}

// Merge returns the element-wise sum of s and o.
func (s Stats) Merge(o Stats) Stats {
	return Stats{
		Test:          s.Test + o.Test,
		Gold:          s.Gold + o.Gold,
		Exact:         s.Exact + o.Exact,
		OverlapP:      s.OverlapP + o.OverlapP,
		OverlapR:      s.OverlapR + o.OverlapR,
		IntersectionP: s.IntersectionP + o.IntersectionP,
		IntersectionR: s.IntersectionR + o.IntersectionR,
		AlignedP:      s.AlignedP + o.AlignedP,
		AlignedR:      s.AlignedR + o.AlignedR,
	}
}

// Validate rejects negative or non-finite sums and numerators larger than
// their denominators.
func (s Stats) Validate() error {
	check := []struct {
		name  string
		value float64
		limit float64
	}{
		{"exact", s.Exact, math.Min(s.Test, s.Gold)},
		{"overlap_p", s.OverlapP, s.Test},
		{"overlap_r", s.OverlapR, s.Gold},
		{"intersection_p", s.IntersectionP, s.Test},
		{"intersection_r", s.IntersectionR, s.Gold},
		{"aligned_p", s.AlignedP, s.Test},
		{"aligned_r", s.AlignedR, s.Gold},
	}
	if !finite(s.Test) || !finite(s.Gold) || s.Test < 0 || s.Gold < 0 {
		return errors.InvalidArgument("set counts must be finite and non-negative")
	}
	for _, c := range check {
		if !finite(c.value) || c.value < 0 || c.value > c.limit+1e-9*c.limit {
			return errors.InvalidArgument("%s = %g out of range [0, %g]", c.name, c.value, c.limit)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Counts returns the exact-match regime as true/false positive counts.
func (s Stats) Counts() counts.Stats {
	return counts.Stats{
		TP: s.Exact,
		FP: s.Test - s.Exact,
		FN: s.Gold - s.Exact,
	}
}

// Result divides the numerators into precision, recall and F per regime.
func (s Stats) Result() Result {
	return Result{
		NumTest:      int(s.Test),
		NumGold:      int(s.Gold),
		Exact:        s.prf(s.Exact, s.Exact),
		Overlap:      s.prf(s.OverlapP, s.OverlapR),
		Intersection: s.prf(s.IntersectionP, s.IntersectionR),
		Aligned:      s.prf(s.AlignedP, s.AlignedR),
	}
}

// prf derives the scores of one regime. Precision and recall follow the
// counts package conventions. F is computed directly from the raw sums as
// 1 / (2(test+gold)/(p+r) - 1); it is 0 when both numerators are 0 and 1
// when there is nothing to compare.
func (s Stats) prf(numP, numR float64) PRF {
	precision := counts.Stats{TP: numP, FP: s.Test - numP}.Precision()
	recall := counts.Stats{TP: numR, FN: s.Gold - numR}.Recall()

	var f float64
	switch {
	case s.Test+s.Gold == 0:
		f = 1.0
	case numP+numR == 0:
		f = 0.0
	default:
		f = 1.0 / (2*(s.Test+s.Gold)/(numP+numR) - 1)
	}

	return PRF{Precision: precision, Recall: recall, F: f}
}

// observe compares one document's gold and predicted sets. Each side is
// a collection of distinct labelled sets, so repeats are dropped first.
func observe[T comparable](gold, test []Labeled[T]) Stats {
	gold, test = distinct(gold), distinct(test)
	s := Stats{
		Test: float64(len(test)),
		Gold: float64(len(gold)),
	}

	for _, g := range gold {
		for _, t := range test {
			if g.Label == t.Label && g.Items.Equal(t.Items) {
				s.Exact++
				break
			}
		}
	}

	s.OverlapP, s.IntersectionP = cover(test, gold)
	s.OverlapR, s.IntersectionR = cover(gold, test)

	pairs := align.Align(gold, test, matchSets[T], align.Options{
		Functional:        true,
		InverseFunctional: true,
		EmitUnaligned:     true,
	})
	for _, p := range pairs {
		if !p.Matched() {
			continue
		}
		shared := float64(p.Left.Items.IntersectionSize(p.Right.Items))
		s.AlignedP += shared / float64(len(p.Right.Items))
		s.AlignedR += shared / float64(len(p.Left.Items))
	}

	return s
}

// distinct keeps the first of every set with the same label and items.
func distinct[T comparable](sets []Labeled[T]) []Labeled[T] {
	out := make([]Labeled[T], 0, len(sets))
next:
	for _, s := range sets {
		for _, kept := range out {
			if kept.Label == s.Label && kept.Items.Equal(s.Items) {
				continue next
			}
		}
		out = append(out, s)
	}
	return out
}

// cover returns, over sets, how many overlap some same-labelled set in
// others, and the summed fraction of each set's items covered by the union
// of those overlaps.
func cover[T comparable](sets, others []Labeled[T]) (overlapping, covered float64) {
	for _, s := range sets {
		union := make(Set[T])
		for _, o := range others {
			if o.Label != s.Label {
				continue
			}
			for item := range s.Items {
				if o.Items.Contains(item) {
					union[item] = struct{}{}
				}
			}
		}
		if len(union) == 0 {
			continue
		}
		overlapping++
		covered += float64(len(union)) / float64(len(s.Items))
	}
	return overlapping, covered
}

// matchSets scores a gold/test pair by the share of each side covered by
// their intersection. Different labels or disjoint sets do not match.
func matchSets[T comparable](gold, test Labeled[T]) (align.Score, bool) {
	if gold.Label != test.Label {
		return nil, false
	}
	shared := gold.Items.IntersectionSize(test.Items)
	if shared == 0 {
		return nil, false
	}
	return align.Score{
		float64(shared) / float64(len(gold.Items)),
		float64(shared) / float64(len(test.Items)),
	}, true
}
