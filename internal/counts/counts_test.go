package counts

import (
	"math"
	"sync"
	"testing"
)

func approxEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestStats_DefaultsWhenEmpty(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
	}{
		{"all zero", Stats{}},
		{"only fn", Stats{FN: 4}},
		{"only tn", Stats{TN: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.Precision(); got != 1.0 {
				t.Errorf("Precision() = %f, want 1.0", got)
			}
		})
	}

	if got := (Stats{FP: 3}).Recall(); got != 1.0 {
		t.Errorf("Recall() with tp=fn=0 = %f, want 1.0", got)
	}
}

func TestStats_PrecisionRecallF(t *testing.T) {
	tests := []struct {
		name      string
		stats     Stats
		precision float64
		recall    float64
		f1        float64
	}{
		{"perfect", Stats{TP: 5}, 1.0, 1.0, 1.0},
		{"half precision", Stats{TP: 2, FP: 2}, 0.5, 1.0, 2.0 / 3.0},
		{"mixed", Stats{TP: 3, FP: 1, FN: 2}, 0.75, 0.6, 2 * 0.75 * 0.6 / 1.35},
		{"zero tp", Stats{FP: 2, FN: 2}, 0.0, 0.0, 0.0},
		{"zero recall only", Stats{FN: 2, FP: 0, TP: 0}, 1.0, 0.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.Precision(); !approxEqual(got, tt.precision, 1e-9) {
				t.Errorf("Precision() = %f, want %f", got, tt.precision)
			}
			if got := tt.stats.Recall(); !approxEqual(got, tt.recall, 1e-9) {
				t.Errorf("Recall() = %f, want %f", got, tt.recall)
			}
			if got := tt.stats.F1(); !approxEqual(got, tt.f1, 1e-9) {
				t.Errorf("F1() = %f, want %f", got, tt.f1)
			}
		})
	}
}

func TestFMeasure_Alpha(t *testing.T) {
	// alpha=1 weighs only precision, alpha=0 only recall.
	if got := FMeasure(0.4, 0.8, 1.0); !approxEqual(got, 0.4, 1e-12) {
		t.Errorf("FMeasure(alpha=1) = %f, want 0.4", got)
	}
	if got := FMeasure(0.4, 0.8, 0.0); !approxEqual(got, 0.8, 1e-12) {
		t.Errorf("FMeasure(alpha=0) = %f, want 0.8", got)
	}
	if got := FMeasure(math.NaN(), 0.5, 0.5); !math.IsNaN(got) {
		t.Errorf("FMeasure(NaN) = %f, want NaN", got)
	}
}

func TestStats_Accuracy(t *testing.T) {
	if got := (Stats{}).Accuracy(); got != 1.0 {
		t.Errorf("Accuracy() on empty = %f, want 1.0", got)
	}
	if got := (Stats{TP: 3, TN: 5, FP: 1, FN: 1}).Accuracy(); !approxEqual(got, 0.8, 1e-12) {
		t.Errorf("Accuracy() = %f, want 0.8", got)
	}
}

func TestStats_AddAssociativeCommutative(t *testing.T) {
	a := Stats{TP: 1, FP: 2, FN: 3}
	b := Stats{TP: 4, FP: 0, FN: 1, TN: 2}
	c := Stats{TP: 0.5, FP: 1.5, FN: 0}

	orders := []Stats{
		a.Add(b).Add(c),
		a.Add(b.Add(c)),
		c.Add(a).Add(b),
		Sum(b, c, a),
		Sum(c, b, a),
	}

	want := orders[0]
	for i, got := range orders[1:] {
		if got != want {
			t.Errorf("order %d = %+v, want %+v", i+1, got, want)
		}
	}
}

func TestAccumulator(t *testing.T) {
	var acc Accumulator
	acc.AddTP(2)
	acc.AddFP(1)
	acc.AddFN(3)
	acc.AddTN(4)
	acc.AddCounts(Stats{TP: 1, FN: 1})

	want := Stats{TP: 3, FP: 1, FN: 4, TN: 4}
	if got := acc.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}

	acc.Reset()
	if got := acc.Stats(); got != (Stats{}) {
		t.Errorf("Stats() after Reset = %+v, want zero", got)
	}
}

func TestAccumulator_Concurrent(t *testing.T) {
	var acc Accumulator
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc.AddTP(1)
			acc.AddFP(2)
			acc.AddFN(3)
		}()
	}
	wg.Wait()

	want := Stats{TP: 50, FP: 100, FN: 150}
	if got := acc.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}
