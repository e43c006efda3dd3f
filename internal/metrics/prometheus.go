package metrics

import (
	"sort"
	"strconv"
	"strings"
)

// PrometheusFormat exports every metric in the Prometheus text exposition
// format. Vectors with no children are omitted.
func (m *Metrics) PrometheusFormat() string {
	var sb strings.Builder

	writeCounterVec(&sb, m.Evaluations)
	writeCounterVec(&sb, m.EvaluationErrors)
	writeHistogram(&sb, m.EvaluationDuration, true)
	writeCounter(&sb, m.BidsEvaluated)
	writeCounter(&sb, m.BidsDisqualified)
	writeHistogram(&sb, m.BidsPerEvaluation, true)
	writeCounter(&sb, m.NoCompliantVendor)
	writeCounterVec(&sb, m.Warnings)
	writeCounterVec(&sb, m.Recommendations)
	writeCounter(&sb, m.Previews)
	writeGauge(&sb, m.StoredEvaluations)

	writeCounterVec(&sb, m.CacheHits)
	writeCounterVec(&sb, m.CacheMisses)
	writeGaugeVec(&sb, m.CacheSize)

	writeCounterVec(&sb, m.BusEventsPublished)
	writeCounterVec(&sb, m.BusEventsConsumed)
	writeHistogramVec(&sb, m.BusEventLatency)
	writeCounterVec(&sb, m.BusErrors)

	writeCounterVec(&sb, m.HTTPRequests)
	writeHistogramVec(&sb, m.HTTPDuration)
	writeGauge(&sb, m.HTTPRequestsInFlight)
	writeHistogramVec(&sb, m.HTTPRequestSize)

	writeGauge(&sb, m.GoroutineCount)
	writeGauge(&sb, m.MemoryUsage)
	writeGauge(&sb, m.Uptime)

	return sb.String()
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	sb.WriteString("# HELP " + name + " " + help + "\n")
	sb.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeSample(sb *strings.Builder, name string, labels map[string]string, value string) {
	sb.WriteString(name)
	writeLabels(sb, labels)
	sb.WriteString(" " + value + "\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCounter(sb *strings.Builder, c *Counter) {
	writeHeader(sb, c.Name(), c.Help(), "counter")
	writeSample(sb, c.Name(), c.Labels(), strconv.FormatInt(c.Value(), 10))
}

func writeGauge(sb *strings.Builder, g *Gauge) {
	writeHeader(sb, g.Name(), g.Help(), "gauge")
	writeSample(sb, g.Name(), g.Labels(), formatFloat(g.Value()))
}

// writeHistogram writes the bucket, sum and count series, with the header
// only when header is set so vectors can share one.
func writeHistogram(sb *strings.Builder, h *Histogram, header bool) {
	if header {
		writeHeader(sb, h.Name(), h.Help(), "histogram")
	}
	labels := h.Labels()
	counts := h.BucketCounts()
	for i, b := range h.Buckets() {
		writeSample(sb, h.Name()+"_bucket", withLabel(labels, "le", formatFloat(b)), strconv.FormatInt(counts[i], 10))
	}
	writeSample(sb, h.Name()+"_bucket", withLabel(labels, "le", "+Inf"), strconv.FormatInt(counts[len(counts)-1], 10))
	writeSample(sb, h.Name()+"_sum", labels, formatFloat(h.Sum()))
	writeSample(sb, h.Name()+"_count", labels, strconv.FormatInt(h.Count(), 10))
}

func writeCounterVec(sb *strings.Builder, cv *CounterVec) {
	cs := cv.GetAll()
	if len(cs) == 0 {
		return
	}
	writeHeader(sb, cv.Name(), cv.Help(), "counter")
	for _, c := range cs {
		writeSample(sb, c.Name(), c.Labels(), strconv.FormatInt(c.Value(), 10))
	}
}

func writeGaugeVec(sb *strings.Builder, gv *GaugeVec) {
	gs := gv.GetAll()
	if len(gs) == 0 {
		return
	}
	writeHeader(sb, gv.Name(), gv.Help(), "gauge")
	for _, g := range gs {
		writeSample(sb, g.Name(), g.Labels(), formatFloat(g.Value()))
	}
}

func writeHistogramVec(sb *strings.Builder, hv *HistogramVec) {
	hs := hv.GetAll()
	if len(hs) == 0 {
		return
	}
	writeHeader(sb, hv.Name(), hv.Help(), "histogram")
	for _, h := range hs {
		writeHistogram(sb, h, false)
	}
}

func withLabel(labels map[string]string, k, v string) map[string]string {
	out := copyLabels(labels)
	out[k] = v
	return out
}

// writeLabels writes {key="value",...} with keys sorted.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k + `="` + escapeString(labels[k]) + `"`)
	}
	sb.WriteByte('}')
}

// escapeString escapes backslashes, quotes and newlines in label values.
func escapeString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}
