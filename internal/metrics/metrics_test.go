package metrics

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	c := NewCounterVec("test_counter", "A test counter").WithLabels()

	if c.Value() != 0 {
		t.Errorf("expected initial value 0, got %d", c.Value())
	}

	c.Inc()
	c.Add(5)
	if c.Value() != 6 {
		t.Errorf("expected value 6, got %d", c.Value())
	}

	// Counters can't decrease
	c.Add(-10)
	if c.Value() != 6 {
		t.Errorf("expected value 6 after Add(-10), got %d", c.Value())
	}
}

func TestGauge(t *testing.T) {
	g := NewGaugeVec("test_gauge", "A test gauge").WithLabels()

	g.Set(42.5)
	if g.Value() != 42.5 {
		t.Errorf("expected value 42.5, got %f", g.Value())
	}

	g.Inc()
	g.Dec()
	g.Add(-0.25)
	if g.Value() != 42.25 {
		t.Errorf("expected value 42.25, got %f", g.Value())
	}
}

func TestGauge_ConcurrentAdd(t *testing.T) {
	g := NewGaugeVec("test_gauge", "A test gauge").WithLabels()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Add(0.5)
		}()
	}
	wg.Wait()

	if g.Value() != 50 {
		t.Errorf("expected value 50, got %f", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogramVec("test_hist", "A test histogram", []float64{10, 1, 5}).WithLabels()

	for _, v := range []float64{0.5, 1, 3, 7, 100} {
		h.Observe(v)
	}

	if h.Count() != 5 {
		t.Errorf("expected count 5, got %d", h.Count())
	}
	if h.Sum() != 111.5 {
		t.Errorf("expected sum 111.5, got %f", h.Sum())
	}

	bounds, cumulative, _, _ := h.snapshot()
	wantBounds := []float64{1, 5, 10}
	wantCum := []uint64{2, 3, 4, 5}
	for i := range wantBounds {
		if bounds[i] != wantBounds[i] {
			t.Errorf("bound %d = %f, want %f", i, bounds[i], wantBounds[i])
		}
	}
	for i := range wantCum {
		if cumulative[i] != wantCum[i] {
			t.Errorf("cumulative %d = %d, want %d", i, cumulative[i], wantCum[i])
		}
	}
}

func TestFamily_WithLabels(t *testing.T) {
	cv := NewCounterVec("requests", "Requests", "method", "status")

	a := cv.WithLabels("GET", "200")
	b := cv.WithLabels("GET", "200")
	if a != b {
		t.Error("same label values should return the same child")
	}
	if cv.WithLabels("POST", "200") == a {
		t.Error("different label values should return a different child")
	}
	if got := len(cv.all()); got != 2 {
		t.Errorf("expected 2 children, got %d", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for the wrong number of label values")
		}
	}()
	cv.WithLabels("GET")
}

func TestStartEvaluation(t *testing.T) {
	m := New()

	done := m.StartEvaluation("ranking")
	if got := m.RunsInProgress.WithLabels().Value(); got != 1 {
		t.Errorf("runs in progress = %f, want 1", got)
	}
	done(12, nil)

	m.StartEvaluation("ranking")(3, errors.New("boom"))

	if got := m.RunsInProgress.WithLabels().Value(); got != 0 {
		t.Errorf("runs in progress = %f, want 0", got)
	}
	if got := m.Evaluations.WithLabels("ranking", StatusDone).Value(); got != 1 {
		t.Errorf("done evaluations = %d, want 1", got)
	}
	if got := m.Evaluations.WithLabels("ranking", StatusFailed).Value(); got != 1 {
		t.Errorf("failed evaluations = %d, want 1", got)
	}
	// Failed runs do not count their items.
	if got := m.ItemsScored.WithLabels("ranking").Value(); got != 12 {
		t.Errorf("items scored = %d, want 12", got)
	}
	if got := m.EvaluationDuration.WithLabels("ranking").Count(); got != 2 {
		t.Errorf("duration observations = %d, want 2", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	m.StartEvaluation("sets")(1, nil)
	m.RecordShard("sets", time.Millisecond)
	m.RecordBusPublish("eval.sets.partial", time.Millisecond, nil)
	m.RecordAggregation("sets", OutcomeMerged)
	m.RecordHTTP("GET", "/", 200, time.Millisecond)
}

func TestPrometheusFormat(t *testing.T) {
	m := New()
	m.RecordShard("ranking", 3*time.Millisecond)
	m.RecordBusPublish("eval.ranking.partial", time.Millisecond, nil)
	m.RecordAggregation("ranking", OutcomeDuplicate)

	out := m.PrometheusFormat()

	want := []string{
		"# TYPE rice_eval_shard_duration_ms histogram",
		`rice_eval_shard_duration_ms_bucket{kind="ranking",le="5"} 1`,
		`rice_eval_shard_duration_ms_bucket{kind="ranking",le="1"} 0`,
		`rice_eval_shard_duration_ms_bucket{kind="ranking",le="+Inf"} 1`,
		`rice_eval_shard_duration_ms_count{kind="ranking"} 1`,
		`rice_eval_bus_published_total{status="done",topic="eval.ranking.partial"} 1`,
		`rice_eval_partials_aggregated_total{kind="ranking",outcome="duplicate"} 1`,
		"# TYPE rice_eval_goroutines gauge",
		"rice_eval_uptime_seconds ",
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q", w)
		}
	}

	// Families without samples are omitted.
	if strings.Contains(out, "rice_eval_evaluations_total") {
		t.Error("empty counter family should not be exported")
	}
}

func TestEscapeString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{`a"b`, `a\"b`},
		{`a\b`, `a\\b`},
		{"a\nb", `a\nb`},
	}

	for _, tt := range tests {
		if got := escapeString(tt.input); got != tt.want {
			t.Errorf("escapeString(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
