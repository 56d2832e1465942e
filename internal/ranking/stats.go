package ranking

import (
	"math"
	"sort"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Stats are the sufficient statistics of a set of scored rankings: plain
// sums and counts that add up under Merge. Every value is finite, so Stats
// can be serialized and shipped between processes.
//
// Per-cutoff slices have MaxN entries; index i holds the sum for cutoff i+1.
type Stats struct {
	MaxN int `json:"max_n"`

	// Rankings counts every ranking added. Judged counts those with at least
	// one relevant item; NDCG, alternate NDCG and MAP average over Judged.
	Rankings int `json:"rankings"`
	Judged   int `json:"judged"`

	Reciprocal float64 `json:"reciprocal_rank"`
	NDCG       float64 `json:"ndcg"`
	AltNDCG    float64 `json:"alt_ndcg"`
	AP         float64 `json:"ap"`

	// Reached[i] counts the rankings with at least i+1 items; precision at
	// cutoff i+1 averages over it.
	Reached     []int     `json:"reached"`
	PrecisionAt []float64 `json:"precision_at"`
	NDCGAt      []float64 `json:"ndcg_at"`
	AltNDCGAt   []float64 `json:"alt_ndcg_at"`
	APAt        []float64 `json:"ap_at"`
}

// MaxCutoffLimit is the largest maxN an Evaluator or Stats accepts.
const MaxCutoffLimit = 10000

// NewStats returns empty statistics for cutoffs 1..maxN.
func NewStats(maxN int) Stats {
	return Stats{
		MaxN:        maxN,
		Reached:     make([]int, maxN),
		PrecisionAt: make([]float64, maxN),
		NDCGAt:      make([]float64, maxN),
		AltNDCGAt:   make([]float64, maxN),
		APAt:        make([]float64, maxN),
	}
}

// Clone returns a deep copy.
func (s Stats) Clone() Stats {
	c := s
	c.Reached = append([]int(nil), s.Reached...)
	c.PrecisionAt = append([]float64(nil), s.PrecisionAt...)
	c.NDCGAt = append([]float64(nil), s.NDCGAt...)
	c.AltNDCGAt = append([]float64(nil), s.AltNDCGAt...)
	c.APAt = append([]float64(nil), s.APAt...)
	return c
}

// Merge returns the statistics of both inputs taken together. When the
// cutoff ranges differ the result keeps the shorter one, the only range
// both sides fully account for.
func (s Stats) Merge(o Stats) Stats {
	if o.MaxN < s.MaxN {
		s, o = o, s
	}
	merged := s.Clone()
	merged.absorb(o)
	return merged
}

// Validate checks statistics received from elsewhere: MaxN within range,
// per-cutoff slices of length MaxN, counts within [0, Rankings] and finite,
// non-negative sums.
func (s Stats) Validate() error {
	if err := validateMaxN(s.MaxN); err != nil {
		return err
	}
	n := s.MaxN
	if len(s.Reached) != n || len(s.PrecisionAt) != n || len(s.NDCGAt) != n ||
		len(s.AltNDCGAt) != n || len(s.APAt) != n {
		return errors.InvalidArgument("per-cutoff statistics must have %d entries", n)
	}
	if s.Rankings < 0 {
		return errors.InvalidArgument("rankings must not be negative, got %d", s.Rankings)
	}
	if s.Judged > s.Rankings || s.Judged < 0 {
		return errors.InvalidArgument("judged rankings (%d) out of range [0, %d]", s.Judged, s.Rankings)
	}
	for i, reached := range s.Reached {
		if reached < 0 || reached > s.Rankings {
			return errors.InvalidArgument("rankings reaching cutoff %d (%d) out of range [0, %d]", i+1, reached, s.Rankings)
		}
	}

	sums := map[string]float64{
		"reciprocal_rank": s.Reciprocal,
		"ndcg":            s.NDCG,
		"alt_ndcg":        s.AltNDCG,
		"ap":              s.AP,
	}
	for name, v := range sums {
		if !validSum(v) {
			return errors.InvalidArgument("%s = %v is not a finite, non-negative sum", name, v)
		}
	}
	perCutoff := map[string][]float64{
		"precision_at": s.PrecisionAt,
		"ndcg_at":      s.NDCGAt,
		"alt_ndcg_at":  s.AltNDCGAt,
		"ap_at":        s.APAt,
	}
	for name, values := range perCutoff {
		for i, v := range values {
			if !validSum(v) {
				return errors.InvalidArgument("%s[%d] = %v is not a finite, non-negative sum", name, i, v)
			}
		}
	}
	return nil
}

func validateMaxN(maxN int) error {
	if maxN < 1 {
		return errors.InvalidArgument("max_n must be positive, got %d", maxN)
	}
	if maxN > MaxCutoffLimit {
		return errors.InvalidArgument("max_n %d exceeds the limit of %d", maxN, MaxCutoffLimit)
	}
	return nil
}

func validSum(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// absorb adds o into s in place. o must cover at least s.MaxN cutoffs.
func (s *Stats) absorb(o Stats) {
	s.Rankings += o.Rankings
	s.Judged += o.Judged
	s.Reciprocal += o.Reciprocal
	s.NDCG += o.NDCG
	s.AltNDCG += o.AltNDCG
	s.AP += o.AP
	for i := 0; i < s.MaxN; i++ {
		s.Reached[i] += o.Reached[i]
		s.PrecisionAt[i] += o.PrecisionAt[i]
		s.NDCGAt[i] += o.NDCGAt[i]
		s.AltNDCGAt[i] += o.AltNDCGAt[i]
		s.APAt[i] += o.APAt[i]
	}
}

// Result turns the sums into averages. Averages over nothing are NaN.
func (s Stats) Result() Result {
	r := Result{
		MaxN:        s.MaxN,
		NumRankings: s.Rankings,
		NumJudged:   s.Judged,
		RankingsAt:  append([]int(nil), s.Reached...),
		PrecisionAt: make([]float64, s.MaxN),
		NDCGAt:      make([]float64, s.MaxN),
		AltNDCGAt:   make([]float64, s.MaxN),
		MAPAt:       make([]float64, s.MaxN),
		MRR:         mean(s.Reciprocal, s.Rankings),
		NDCG:        mean(s.NDCG, s.Judged),
		AltNDCG:     mean(s.AltNDCG, s.Judged),
		MAP:         mean(s.AP, s.Judged),
	}
	for i := 0; i < s.MaxN; i++ {
		r.PrecisionAt[i] = mean(s.PrecisionAt[i], s.Reached[i])
		r.NDCGAt[i] = mean(s.NDCGAt[i], s.Judged)
		r.AltNDCGAt[i] = mean(s.AltNDCGAt[i], s.Judged)
		r.MAPAt[i] = mean(s.APAt[i], s.Judged)
	}
	return r
}

func mean(sum float64, count int) float64 {
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// discount is the NDCG position discount: 1 at the first rank, then
// ln 2 / ln n.
func discount(n int) float64 {
	if n == 1 {
		return 1
	}
	return math.Ln2 / math.Log(float64(n))
}

// altDiscount is the textbook 1 / log2(n+1) discount.
func altDiscount(n int) float64 {
	return math.Ln2 / math.Log(float64(n+1))
}

// altGain is the exponential gain 2^rel - 1.
func altGain(relevance float64) float64 {
	return math.Exp2(relevance) - 1
}

// observe scores one ranking against graded judgments and returns its
// statistics. An item is relevant when its grade is positive; repeated
// occurrences of an item earn nothing after the first.
//
// Average precision divides by the number of relevant items rather than by
// min(n, relevant), following Manning, Raghavan and Schütze, Introduction to
// Information Retrieval (2008), section 8.4, which keeps MAP comparable
// between rankings of different lengths.
func observe[T comparable](maxN int, ranked []T, grades map[T]float64) Stats {
	s := NewStats(maxN)
	s.Rankings = 1

	ideal := make([]float64, 0, len(grades))
	for _, g := range grades {
		if g > 0 {
			ideal = append(ideal, g)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))

	numRelevant := len(ideal)
	judged := numRelevant > 0
	if judged {
		s.Judged = 1
	}

	var (
		hits            int
		apSum           float64
		dcg, idcg       float64
		altDCG, altIDCG float64
		seen            = make(map[T]struct{}, len(ranked))
		relevantCount   = float64(numRelevant)
	)

	recordCutoff := func(n int) {
		if n > maxN || !judged {
			return
		}
		s.NDCGAt[n-1] = dcg / idcg
		s.AltNDCGAt[n-1] = altDCG / altIDCG
		s.APAt[n-1] = apSum / relevantCount
	}

	extendIdeal := func(n int) {
		if n <= numRelevant {
			idcg += ideal[n-1] * discount(n)
			altIDCG += altGain(ideal[n-1]) * altDiscount(n)
		}
	}

	for i, item := range ranked {
		n := i + 1

		gain := 0.0
		if _, dup := seen[item]; !dup {
			seen[item] = struct{}{}
			if g := grades[item]; g > 0 {
				gain = g
			}
		}

		relevant := gain > 0
		if relevant {
			hits++
		}
		precision := float64(hits) / float64(n)
		if relevant {
			if hits == 1 {
				s.Reciprocal = 1 / float64(n)
			}
			apSum += precision
		}

		dcg += gain * discount(n)
		altDCG += altGain(gain) * altDiscount(n)
		extendIdeal(n)

		if n <= maxN {
			s.Reached[i] = 1
			s.PrecisionAt[i] = precision
		}
		recordCutoff(n)
	}

	// Past the end of the ranking only the ideal side keeps growing.
	for n := len(ranked) + 1; n <= max(maxN, numRelevant); n++ {
		extendIdeal(n)
		recordCutoff(n)
	}

	if judged {
		s.NDCG = dcg / idcg
		s.AltNDCG = altDCG / altIDCG
		s.AP = apSum / relevantCount
	}

	return s
}
