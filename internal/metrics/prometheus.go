package metrics

import (
	"io"
	"sort"
	"strconv"
	"strings"
)

// PrometheusFormat exports all metrics in Prometheus text exposition format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func (m *Metrics) PrometheusFormat() string {
	var sb strings.Builder
	m.WritePrometheus(&sb)
	return sb.String()
}

// WritePrometheus writes all metrics to w in text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) error {
	m.collectSystem()

	var sb strings.Builder

	// Evaluation metrics
	writeCounters(&sb, m.Evaluations)
	writeHistograms(&sb, m.EvaluationDuration)
	writeCounters(&sb, m.ItemsScored)
	writeHistograms(&sb, m.ShardDuration)
	writeGauges(&sb, m.RunsInProgress)

	// Bus metrics
	writeCounters(&sb, m.BusPublished)
	writeHistograms(&sb, m.BusPublishDuration)
	writeCounters(&sb, m.PartialsAggregated)

	// HTTP metrics
	writeCounters(&sb, m.HTTPRequests)
	writeHistograms(&sb, m.HTTPDuration)
	writeGauges(&sb, m.HTTPRequestsInFlight)

	// System metrics
	writeGauges(&sb, m.Goroutines)
	writeGauges(&sb, m.Uptime)

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	sb.WriteString("# HELP ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(help)
	sb.WriteString("\n# TYPE ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(kind)
	sb.WriteString("\n")
}

func writeSample(sb *strings.Builder, name string, labels map[string]string, value string) {
	sb.WriteString(name)
	writeLabels(sb, labels)
	sb.WriteString(" ")
	sb.WriteString(value)
	sb.WriteString("\n")
}

// writeCounters writes a counter family. Families with no children are
// skipped.
func writeCounters(sb *strings.Builder, cv *CounterVec) {
	counters := cv.all()
	if len(counters) == 0 {
		return
	}
	writeHeader(sb, cv.Name(), cv.Help(), "counter")
	for _, c := range counters {
		writeSample(sb, cv.Name(), c.labels, strconv.FormatInt(c.Value(), 10))
	}
}

func writeGauges(sb *strings.Builder, gv *GaugeVec) {
	gauges := gv.all()
	if len(gauges) == 0 {
		return
	}
	writeHeader(sb, gv.Name(), gv.Help(), "gauge")
	for _, g := range gauges {
		writeSample(sb, gv.Name(), g.labels, formatFloat(g.Value()))
	}
}

func writeHistograms(sb *strings.Builder, hv *HistogramVec) {
	histograms := hv.all()
	if len(histograms) == 0 {
		return
	}
	writeHeader(sb, hv.Name(), hv.Help(), "histogram")
	for _, h := range histograms {
		bounds, cumulative, sum, count := h.snapshot()
		for i, bound := range bounds {
			writeSample(sb, hv.Name()+"_bucket", withLabel(h.labels, "le", formatFloat(bound)),
				strconv.FormatUint(cumulative[i], 10))
		}
		writeSample(sb, hv.Name()+"_bucket", withLabel(h.labels, "le", "+Inf"),
			strconv.FormatUint(cumulative[len(cumulative)-1], 10))
		writeSample(sb, hv.Name()+"_sum", h.labels, formatFloat(sum))
		writeSample(sb, hv.Name()+"_count", h.labels, strconv.FormatUint(count, 10))
	}
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

// writeLabels writes labels in Prometheus format {key="value",key2="value2"}.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}

	// Sort keys for stable output
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k)
		sb.WriteString("=\"")
		sb.WriteString(escapeString(labels[k]))
		sb.WriteString("\"")
	}
	sb.WriteString("}")
}

// escapeString escapes special characters in label values.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
