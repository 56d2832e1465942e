package ranking

import (
	"strconv"
	"strings"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// MeasureType names a ranking measure.
type MeasureType string

// Supported measure types.
const (
	Precision MeasureType = "p"
	MRR       MeasureType = "mrr"
	NDCG      MeasureType = "ndcg"
	AltNDCG   MeasureType = "altndcg"
	MAP       MeasureType = "map"
)

// Measure selects one value of a Result: a type plus an optional cutoff.
// At is zero for the whole-ranking value.
type Measure struct {
	Type MeasureType
	At   int
}

// DefaultMeasures is the report produced when no measure list is given.
const DefaultMeasures = "p@1,p@5,p@10,mrr,ndcg,ndcg@10,altndcg,map"

// ParseMeasure parses "type" or "type@number". Precision requires a
// cutoff and MRR takes none.
func ParseMeasure(s string) (Measure, error) {
	name, at, hasAt := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "@")

	m := Measure{Type: MeasureType(name)}
	switch m.Type {
	case Precision, MRR, NDCG, AltNDCG, MAP:
	default:
		return Measure{}, errors.InvalidArgument("unknown measure type %q in %q", name, s)
	}

	if hasAt {
		n, err := strconv.Atoi(at)
		if err != nil || n <= 0 {
			return Measure{}, errors.InvalidArgument("invalid cutoff %q in %q", at, s)
		}
		if n > MaxCutoffLimit {
			return Measure{}, errors.InvalidArgument("cutoff %d in %q exceeds the limit of %d", n, s, MaxCutoffLimit)
		}
		m.At = n
	}

	if m.Type == Precision && m.At == 0 {
		return Measure{}, errors.InvalidArgument("measure %q needs a cutoff, e.g. p@10", s)
	}
	if m.Type == MRR && m.At != 0 {
		return Measure{}, errors.InvalidArgument("measure %q does not take a cutoff", s)
	}

	return m, nil
}

// ParseMeasures parses a comma-separated measure list.
func ParseMeasures(list string) ([]Measure, error) {
	var measures []Measure
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m, err := ParseMeasure(part)
		if err != nil {
			return nil, err
		}
		measures = append(measures, m)
	}
	if len(measures) == 0 {
		return nil, errors.InvalidArgument("no measure supplied")
	}
	return measures, nil
}

// String renders the measure in the form ParseMeasure accepts.
func (m Measure) String() string {
	if m.At == 0 {
		return string(m.Type)
	}
	return string(m.Type) + "@" + strconv.Itoa(m.At)
}

// MaxCutoff returns the largest cutoff used by measures, so callers can
// size an evaluator for a report.
func MaxCutoff(measures []Measure) int {
	maxN := 0
	for _, m := range measures {
		maxN = max(maxN, m.At)
	}
	return maxN
}
