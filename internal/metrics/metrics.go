// Package metrics provides Prometheus-compatible metrics for the evaluation
// service without a client library dependency.
package metrics

import (
	"runtime"
	"strconv"
	"time"
)

// Evaluation outcomes recorded by RecordEvaluation.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

// Aggregation outcomes recorded by RecordAggregation.
const (
	OutcomeMerged    = "merged"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	startTime time.Time

	// Evaluation metrics
	Evaluations        *CounterVec   // labels: kind, status
	EvaluationDuration *HistogramVec // labels: kind
	ItemsScored        *CounterVec   // labels: kind (queries or documents)
	ShardDuration      *HistogramVec // labels: kind
	RunsInProgress     *GaugeVec

	// Bus metrics
	BusPublished       *CounterVec   // labels: topic, status
	BusPublishDuration *HistogramVec // labels: topic
	PartialsAggregated *CounterVec   // labels: kind, outcome

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, route, status
	HTTPDuration         *HistogramVec // labels: route
	HTTPRequestsInFlight *GaugeVec

	// System metrics
	Goroutines *GaugeVec
	Uptime     *GaugeVec
}

// New creates a metrics registry.
func New() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		Evaluations: NewCounterVec("rice_eval_evaluations_total",
			"Evaluations run, by kind and final status", "kind", "status"),
		EvaluationDuration: NewHistogramVec("rice_eval_evaluation_duration_ms",
			"Wall time of a full evaluation in milliseconds", nil, "kind"),
		ItemsScored: NewCounterVec("rice_eval_items_scored_total",
			"Queries or documents scored", "kind"),
		ShardDuration: NewHistogramVec("rice_eval_shard_duration_ms",
			"Time to score one shard in milliseconds", nil, "kind"),
		RunsInProgress: NewGaugeVec("rice_eval_runs_in_progress",
			"Evaluations currently running"),

		BusPublished: NewCounterVec("rice_eval_bus_published_total",
			"Events published on the bus, by topic and outcome", "topic", "status"),
		BusPublishDuration: NewHistogramVec("rice_eval_bus_publish_duration_ms",
			"Bus publish latency in milliseconds", nil, "topic"),
		PartialsAggregated: NewCounterVec("rice_eval_partials_aggregated_total",
			"Shard statistics received by the aggregator", "kind", "outcome"),

		HTTPRequests: NewCounterVec("rice_eval_http_requests_total",
			"HTTP requests, by method, route and status code", "method", "route", "status"),
		HTTPDuration: NewHistogramVec("rice_eval_http_request_duration_ms",
			"HTTP request latency in milliseconds", nil, "route"),
		HTTPRequestsInFlight: NewGaugeVec("rice_eval_http_requests_in_flight",
			"HTTP requests being served"),

		Goroutines: NewGaugeVec("rice_eval_goroutines",
			"Number of goroutines"),
		Uptime: NewGaugeVec("rice_eval_uptime_seconds",
			"Seconds since the process started"),
	}
}

// StartEvaluation marks an evaluation as running and returns a function
// that records its outcome.
func (m *Metrics) StartEvaluation(kind string) func(items int, err error) {
	if m == nil {
		return func(int, error) {}
	}

	start := time.Now()
	m.RunsInProgress.WithLabels().Inc()

	return func(items int, err error) {
		m.RunsInProgress.WithLabels().Dec()

		status := StatusDone
		if err != nil {
			status = StatusFailed
		}
		m.Evaluations.WithLabels(kind, status).Inc()
		m.EvaluationDuration.WithLabels(kind).Observe(millis(time.Since(start)))
		if err == nil {
			m.ItemsScored.WithLabels(kind).Add(int64(items))
		}
	}
}

// RecordShard records the time taken to score one shard.
func (m *Metrics) RecordShard(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.ShardDuration.WithLabels(kind).Observe(millis(d))
}

// RecordBusPublish records one bus publish. It satisfies
// bus.MetricsRecorder.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusDone
	if err != nil {
		status = StatusFailed
	}
	m.BusPublished.WithLabels(topic, status).Inc()
	m.BusPublishDuration.WithLabels(topic).Observe(millis(latency))
}

// RecordAggregation counts one partial handled by the aggregator.
func (m *Metrics) RecordAggregation(kind, outcome string) {
	if m == nil {
		return
	}
	m.PartialsAggregated.WithLabels(kind, outcome).Inc()
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabels(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabels(route).Observe(millis(d))
}

// collectSystem refreshes process gauges before export.
func (m *Metrics) collectSystem() {
	m.Goroutines.WithLabels().Set(float64(runtime.NumGoroutine()))
	m.Uptime.WithLabels().Set(time.Since(m.startTime).Seconds())
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
