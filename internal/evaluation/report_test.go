package evaluation

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ricesearch/rice-eval/internal/ranking"
	"github.com/ricesearch/rice-eval/internal/setscore"
)

func TestRankingReport_TSV(t *testing.T) {
	e, _ := ranking.NewEvaluator[string](3)
	e.AddBinary([]string{"A", "B", "C"}, []string{"A", "C"})

	measures, _ := ranking.ParseMeasures("p@2,mrr,map")
	report, err := NewRankingReport("run-1", e.Result(), measures)
	if err != nil {
		t.Fatalf("NewRankingReport() error = %v", err)
	}

	var buf bytes.Buffer
	if err := report.WriteTSV(&buf); err != nil {
		t.Fatalf("WriteTSV() error = %v", err)
	}

	want := "num_rankings\t1\nnum_judged\t1\np@2\t0.5000\nmrr\t1.0000\nmap\t0.8333\n"
	if buf.String() != want {
		t.Errorf("WriteTSV() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestRankingReport_NaN(t *testing.T) {
	e, _ := ranking.NewEvaluator[string](2)
	// No relevant documents: nothing is judged.
	e.AddBinary([]string{"A"}, nil)

	measures, _ := ranking.ParseMeasures("mrr,ndcg")
	report, err := NewRankingReport("", e.Result(), measures)
	if err != nil {
		t.Fatal(err)
	}

	var tsv bytes.Buffer
	report.WriteTSV(&tsv)
	if !strings.Contains(tsv.String(), "ndcg\tNaN\n") {
		t.Errorf("TSV should print NaN for ndcg: %q", tsv.String())
	}

	var js bytes.Buffer
	if err := WriteJSON(&js, report); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var decoded struct {
		Measures []struct {
			Measure string   `json:"measure"`
			Value   *float64 `json:"value"`
		} `json:"measures"`
	}
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, js.String())
	}
	if decoded.Measures[0].Value == nil || *decoded.Measures[0].Value != 0 {
		t.Errorf("mrr = %v, want 0", decoded.Measures[0].Value)
	}
	if decoded.Measures[1].Value != nil {
		t.Errorf("ndcg = %v, want null", *decoded.Measures[1].Value)
	}
}

func TestRankingReport_CutoffOutOfRange(t *testing.T) {
	e, _ := ranking.NewEvaluator[string](2)
	measures, _ := ranking.ParseMeasures("p@5")
	if _, err := NewRankingReport("", e.Result(), measures); err == nil {
		t.Error("NewRankingReport() should reject a cutoff beyond max_n")
	}
}

func TestSetsReport(t *testing.T) {
	e := setscore.NewEvaluator[string]()
	e.Add(
		[]setscore.Labeled[string]{{Items: setscore.NewSet("a", "b")}, {Items: setscore.NewSet("c")}},
		[]setscore.Labeled[string]{{Items: setscore.NewSet("a", "b")}},
	)

	report := NewSetsReport("run-s", e.Stats(), 0.5)
	if report.TP != 1 || report.FP != 0 || report.FN != 1 {
		t.Errorf("counts = %v/%v/%v, want 1/0/1", report.TP, report.FP, report.FN)
	}
	if !approxEqual(report.FAlpha, 2.0/3, 1e-12) {
		t.Errorf("FAlpha = %f, want 2/3", report.FAlpha)
	}

	var buf bytes.Buffer
	if err := report.WriteTSV(&buf); err != nil {
		t.Fatalf("WriteTSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), buf.String())
	}
	if lines[0] != "exact\t1.0000\t0.5000\t0.5000" {
		t.Errorf("exact line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[3], "aligned\t") {
		t.Errorf("last line = %q, want aligned", lines[3])
	}
}
