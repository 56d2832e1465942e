package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultBuckets are histogram bounds in milliseconds.
var DefaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Counter is a monotonically increasing counter.
type Counter struct {
	value  atomic.Int64
	labels map[string]string
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add adds delta to the counter. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta < 0 {
		return // Counters can't decrease
	}
	c.value.Add(delta)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

func (c *Counter) labelSet() map[string]string { return c.labels }

// Gauge is a float64 that can go up and down.
type Gauge struct {
	bits   atomic.Uint64
	labels map[string]string
}

// Set sets the gauge to v.
func (g *Gauge) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Add adds delta to the gauge.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

func (g *Gauge) labelSet() map[string]string { return g.labels }

// Histogram counts observations into buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64 // per bucket, last is +Inf
	sum     float64
	count   uint64
	labels  map[string]string
}

func newHistogram(buckets []float64, labels map[string]string) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	return &Histogram{
		buckets: sorted,
		counts:  make([]uint64, len(sorted)+1),
		labels:  labels,
	}
}

// Observe adds a single observation.
func (h *Histogram) Observe(v float64) {
	// First bucket whose upper bound is >= v; len(buckets) is +Inf.
	idx := sort.SearchFloat64s(h.buckets, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[idx]++
	h.sum += v
	h.count++
}

// Count returns the total number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// snapshot returns cumulative bucket counts (+Inf last), the sum and the count.
func (h *Histogram) snapshot() (bounds []float64, cumulative []uint64, sum float64, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cumulative = make([]uint64, len(h.counts))
	var running uint64
	for i, c := range h.counts {
		running += c
		cumulative[i] = running
	}
	return h.buckets, cumulative, h.sum, h.count
}

func (h *Histogram) labelSet() map[string]string { return h.labels }

type metric interface {
	labelSet() map[string]string
}

// Family is a named metric with one child per distinct label value tuple.
type Family[M metric] struct {
	name       string
	help       string
	labelNames []string
	newChild   func(labels map[string]string) M

	mu       sync.RWMutex
	children map[string]M
}

// CounterVec is a labelled counter.
type CounterVec = Family[*Counter]

// GaugeVec is a labelled gauge.
type GaugeVec = Family[*Gauge]

// HistogramVec is a labelled histogram.
type HistogramVec = Family[*Histogram]

// NewCounterVec creates a counter family.
func NewCounterVec(name, help string, labelNames ...string) *CounterVec {
	return newFamily(name, help, labelNames, func(l map[string]string) *Counter {
		return &Counter{labels: l}
	})
}

// NewGaugeVec creates a gauge family.
func NewGaugeVec(name, help string, labelNames ...string) *GaugeVec {
	return newFamily(name, help, labelNames, func(l map[string]string) *Gauge {
		return &Gauge{labels: l}
	})
}

// NewHistogramVec creates a histogram family sharing one bucket layout.
func NewHistogramVec(name, help string, buckets []float64, labelNames ...string) *HistogramVec {
	return newFamily(name, help, labelNames, func(l map[string]string) *Histogram {
		return newHistogram(buckets, l)
	})
}

func newFamily[M metric](name, help string, labelNames []string, newChild func(map[string]string) M) *Family[M] {
	return &Family[M]{
		name:       name,
		help:       help,
		labelNames: labelNames,
		newChild:   newChild,
		children:   make(map[string]M),
	}
}

// WithLabels returns the child for the given label values, creating it on
// first use. It panics when the number of values does not match the
// family's label names.
func (f *Family[M]) WithLabels(labelValues ...string) M {
	if len(labelValues) != len(f.labelNames) {
		panic(fmt.Sprintf("metric %s: expected %d label values, got %d", f.name, len(f.labelNames), len(labelValues)))
	}
	key := strings.Join(labelValues, "\xff")

	f.mu.RLock()
	child, ok := f.children[key]
	f.mu.RUnlock()
	if ok {
		return child
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock
	if child, ok := f.children[key]; ok {
		return child
	}

	labels := make(map[string]string, len(f.labelNames))
	for i, name := range f.labelNames {
		labels[name] = labelValues[i]
	}
	child = f.newChild(labels)
	f.children[key] = child
	return child
}

// Name returns the metric name.
func (f *Family[M]) Name() string { return f.name }

// Help returns the metric help text.
func (f *Family[M]) Help() string { return f.help }

// all returns the children ordered by label values.
func (f *Family[M]) all() []M {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := make([]string, 0, len(f.children))
	for k := range f.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]M, len(keys))
	for i, k := range keys {
		result[i] = f.children[k]
	}
	return result
}
