package evaluation

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/ricesearch/rice-eval/internal/ranking"
	"github.com/ricesearch/rice-eval/internal/setscore"
)

// MeasureValue is one reported measure. A nil Value stands for an average
// over nothing.
type MeasureValue struct {
	Measure string   `json:"measure"`
	Value   *float64 `json:"value"`
}

// RankingReport is the JSON view of a ranking result.
type RankingReport struct {
	RunID       string         `json:"run_id,omitempty"`
	MaxN        int            `json:"max_n"`
	NumRankings int            `json:"num_rankings"`
	NumJudged   int            `json:"num_judged"`
	Measures    []MeasureValue `json:"measures"`
}

// NewRankingReport reads the requested measures out of r.
func NewRankingReport(runID string, r ranking.Result, measures []ranking.Measure) (*RankingReport, error) {
	report := &RankingReport{
		RunID:       runID,
		MaxN:        r.MaxN,
		NumRankings: r.NumRankings,
		NumJudged:   r.NumJudged,
		Measures:    make([]MeasureValue, 0, len(measures)),
	}
	for _, m := range measures {
		v, err := r.Get(m)
		if err != nil {
			return nil, err
		}
		report.Measures = append(report.Measures, MeasureValue{Measure: m.String(), Value: finiteOrNil(v)})
	}
	return report, nil
}

// WriteTSV writes "measure<TAB>value" lines. Averages over nothing print
// as NaN.
func (rr *RankingReport) WriteTSV(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "num_rankings\t%d\nnum_judged\t%d\n", rr.NumRankings, rr.NumJudged); err != nil {
		return err
	}
	for _, mv := range rr.Measures {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", mv.Measure, formatValue(mv.Value)); err != nil {
			return err
		}
	}
	return nil
}

// RegimeScores is one regime row of a set report.
type RegimeScores struct {
	Regime    setscore.Regime `json:"regime"`
	Precision float64         `json:"precision"`
	Recall    float64         `json:"recall"`
	F         float64         `json:"f"`
}

// SetsReport is the JSON view of a set result.
type SetsReport struct {
	RunID   string         `json:"run_id,omitempty"`
	NumTest int            `json:"num_test"`
	NumGold int            `json:"num_gold"`
	Regimes []RegimeScores `json:"regimes"`

	// Exact-match counts, with F weighted by Alpha.
	TP     float64 `json:"tp"`
	FP     float64 `json:"fp"`
	FN     float64 `json:"fn"`
	Alpha  float64 `json:"alpha"`
	FAlpha float64 `json:"f_alpha"`
}

// NewSetsReport builds a report from merged set statistics.
func NewSetsReport(runID string, s setscore.Stats, alpha float64) *SetsReport {
	r := s.Result()
	c := s.Counts()

	report := &SetsReport{
		RunID:   runID,
		NumTest: r.NumTest,
		NumGold: r.NumGold,
		TP:      c.TP,
		FP:      c.FP,
		FN:      c.FN,
		Alpha:   alpha,
		FAlpha:  c.F(alpha),
	}
	for _, regime := range setscore.Regimes {
		prf, _ := r.Get(regime)
		report.Regimes = append(report.Regimes, RegimeScores{
			Regime:    regime,
			Precision: prf.Precision,
			Recall:    prf.Recall,
			F:         prf.F,
		})
	}
	return report
}

// WriteTSV writes "regime<TAB>P<TAB>R<TAB>F" lines.
func (sr *SetsReport) WriteTSV(w io.Writer) error {
	for _, rs := range sr.Regimes {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rs.Regime,
			formatFloat(rs.Precision), formatFloat(rs.Recall), formatFloat(rs.F)); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatValue(v *float64) string {
	if v == nil {
		return "NaN"
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
