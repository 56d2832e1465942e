package ranking

import (
	"math"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Result is an immutable snapshot of averaged ranking scores. Slices hold
// one entry per cutoff, index i for cutoff i+1.
//
// Precision at a cutoff averages over the rankings that reached it. The
// NDCG, alternate NDCG and MAP values average over the rankings that had at
// least one relevant item, and MRR over every ranking. Averages over no
// rankings are NaN.
type Result struct {
	MaxN        int   `json:"max_n"`
	NumRankings int   `json:"num_rankings"`
	NumJudged   int   `json:"num_judged"`
	RankingsAt  []int `json:"rankings_at"`

	PrecisionAt []float64 `json:"precision_at"`
	NDCGAt      []float64 `json:"ndcg_at"`
	AltNDCGAt   []float64 `json:"alt_ndcg_at"`
	MAPAt       []float64 `json:"map_at"`

	MRR     float64 `json:"mrr"`
	NDCG    float64 `json:"ndcg"`
	AltNDCG float64 `json:"alt_ndcg"`
	MAP     float64 `json:"map"`
}

// Get returns the value of a measure. A cutoff outside 1..MaxN is an
// InvalidArgument error.
func (r Result) Get(m Measure) (float64, error) {
	if m.At < 0 || m.At > r.MaxN {
		return 0, errors.InvalidArgument("cutoff %d out of range [1, %d]", m.At, r.MaxN)
	}

	switch m.Type {
	case Precision:
		if m.At == 0 {
			return 0, errors.InvalidArgument("precision needs a cutoff in [1, %d]", r.MaxN)
		}
		return r.PrecisionAt[m.At-1], nil
	case MRR:
		if m.At != 0 {
			return 0, errors.InvalidArgument("mrr does not take a cutoff")
		}
		return r.MRR, nil
	case NDCG:
		if m.At == 0 {
			return r.NDCG, nil
		}
		return r.NDCGAt[m.At-1], nil
	case AltNDCG:
		if m.At == 0 {
			return r.AltNDCG, nil
		}
		return r.AltNDCGAt[m.At-1], nil
	case MAP:
		if m.At == 0 {
			return r.MAP, nil
		}
		return r.MAPAt[m.At-1], nil
	default:
		return 0, errors.InvalidArgument("unknown measure type %q", m.Type)
	}
}

// Value parses name as a measure and returns its value.
func (r Result) Value(name string) (float64, error) {
	m, err := ParseMeasure(name)
	if err != nil {
		return 0, err
	}
	return r.Get(m)
}

// Stats converts the averages back into sums, weighting each by the number
// of rankings it was averaged over.
func (r Result) Stats() Stats {
	s := NewStats(r.MaxN)
	s.Rankings = r.NumRankings
	s.Judged = r.NumJudged
	s.Reciprocal = weigh(r.MRR, r.NumRankings)
	s.NDCG = weigh(r.NDCG, r.NumJudged)
	s.AltNDCG = weigh(r.AltNDCG, r.NumJudged)
	s.AP = weigh(r.MAP, r.NumJudged)
	for i := 0; i < r.MaxN; i++ {
		s.Reached[i] = r.RankingsAt[i]
		s.PrecisionAt[i] = weigh(r.PrecisionAt[i], r.RankingsAt[i])
		s.NDCGAt[i] = weigh(r.NDCGAt[i], r.NumJudged)
		s.AltNDCGAt[i] = weigh(r.AltNDCGAt[i], r.NumJudged)
		s.APAt[i] = weigh(r.MAPAt[i], r.NumJudged)
	}
	return s
}

func weigh(avg float64, count int) float64 {
	if count == 0 || math.IsNaN(avg) {
		return 0
	}
	return avg * float64(count)
}

// clone returns a deep copy so cached snapshots stay untouched by callers.
func (r Result) clone() Result {
	c := r
	c.RankingsAt = append([]int(nil), r.RankingsAt...)
	c.PrecisionAt = append([]float64(nil), r.PrecisionAt...)
	c.NDCGAt = append([]float64(nil), r.NDCGAt...)
	c.AltNDCGAt = append([]float64(nil), r.AltNDCGAt...)
	c.MAPAt = append([]float64(nil), r.MAPAt...)
	return c
}

// Average combines finished results as if all their rankings had gone
// through one evaluator. The cutoff range is the smallest among the inputs.
func Average(results ...Result) (Result, error) {
	if len(results) == 0 {
		return Result{}, errors.InvalidArgument("no measure supplied")
	}

	for _, r := range results {
		if err := r.validate(); err != nil {
			return Result{}, err
		}
	}

	total := results[0].Stats()
	for _, r := range results[1:] {
		total = total.Merge(r.Stats())
	}
	return total.Result(), nil
}
