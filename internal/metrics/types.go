// Package metrics collects engine metrics and exports them in the
// Prometheus text format.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  atomic.Int64
}

// NewCounter creates a new counter.
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{name: name, help: help, labels: copyLabels(labels)}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds delta. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta > 0 {
		c.value.Add(delta)
	}
}

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Reset sets the counter back to zero.
func (c *Counter) Reset() { c.value.Store(0) }

func (c *Counter) Name() string              { return c.name }
func (c *Counter) Help() string              { return c.help }
func (c *Counter) Labels() map[string]string { return copyLabels(c.labels) }

// Gauge is a value that can go up and down. The float is stored as its
// IEEE 754 bits so updates stay lock free.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	bits   atomic.Uint64
}

// NewGauge creates a new gauge.
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{name: name, help: help, labels: copyLabels(labels)}
}

// Set sets the gauge to v.
func (g *Gauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

// Add adds delta, which may be negative.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

func (g *Gauge) Name() string              { return g.name }
func (g *Gauge) Help() string              { return g.help }
func (g *Gauge) Labels() map[string]string { return copyLabels(g.labels) }

// DefaultBuckets are latency buckets in milliseconds.
var DefaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64

	mu     sync.Mutex
	counts []int64 // one per bucket plus +Inf, not cumulative
	sum    float64
	count  int64
}

// NewHistogram creates a histogram. Nil or empty buckets use DefaultBuckets.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	return newHistogram(name, help, nil, buckets)
}

func newHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &Histogram{
		name:    name,
		help:    help,
		labels:  copyLabels(labels),
		buckets: b,
		counts:  make([]int64, len(b)+1),
	}
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.buckets, v)

	h.mu.Lock()
	h.counts[i]++
	h.sum += v
	h.count++
	h.mu.Unlock()
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observations.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Buckets returns the bucket upper bounds.
func (h *Histogram) Buckets() []float64 {
	return append([]float64(nil), h.buckets...)
}

// BucketCounts returns cumulative counts, one per bucket followed by +Inf.
func (h *Histogram) BucketCounts() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.counts))
	var acc int64
	for i, c := range h.counts {
		acc += c
		out[i] = acc
	}
	return out
}

func (h *Histogram) Name() string              { return h.name }
func (h *Histogram) Help() string              { return h.help }
func (h *Histogram) Labels() map[string]string { return copyLabels(h.labels) }

// vec lazily creates one child metric per distinct label value tuple.
type vec[T any] struct {
	name       string
	help       string
	labelNames []string
	newChild   func(labels map[string]string) T

	mu       sync.RWMutex
	children map[string]T
}

func (v *vec[T]) with(values ...string) T {
	if len(values) != len(v.labelNames) {
		panic(fmt.Sprintf("%s: expected %d label values, got %d", v.name, len(v.labelNames), len(values)))
	}
	labels := make(map[string]string, len(values))
	for i, n := range v.labelNames {
		labels[n] = values[i]
	}
	key := labelsToKey(labels)

	v.mu.RLock()
	child, ok := v.children[key]
	v.mu.RUnlock()
	if ok {
		return child
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if child, ok := v.children[key]; ok {
		return child
	}
	child = v.newChild(labels)
	v.children[key] = child
	return child
}

// all returns the children ordered by label key.
func (v *vec[T]) all() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.children))
	for k := range v.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, v.children[k])
	}
	return out
}

// CounterVec is a counter family partitioned by labels.
type CounterVec struct{ vec[*Counter] }

// NewCounterVec creates a new counter vector.
func NewCounterVec(name, help string, labelNames []string) *CounterVec {
	cv := &CounterVec{vec[*Counter]{name: name, help: help, labelNames: labelNames, children: map[string]*Counter{}}}
	cv.newChild = func(l map[string]string) *Counter { return NewCounter(name, help, l) }
	return cv
}

// WithLabels returns the counter for the label values, creating it on
// first use. It panics when the value count does not match.
func (cv *CounterVec) WithLabels(values ...string) *Counter { return cv.with(values...) }

// GetAll returns every counter in label order.
func (cv *CounterVec) GetAll() []*Counter { return cv.all() }

// Total sums every counter in the family.
func (cv *CounterVec) Total() int64 {
	var n int64
	for _, c := range cv.all() {
		n += c.Value()
	}
	return n
}

func (cv *CounterVec) Name() string { return cv.name }
func (cv *CounterVec) Help() string { return cv.help }

// GaugeVec is a gauge family partitioned by labels.
type GaugeVec struct{ vec[*Gauge] }

// NewGaugeVec creates a new gauge vector.
func NewGaugeVec(name, help string, labelNames []string) *GaugeVec {
	gv := &GaugeVec{vec[*Gauge]{name: name, help: help, labelNames: labelNames, children: map[string]*Gauge{}}}
	gv.newChild = func(l map[string]string) *Gauge { return NewGauge(name, help, l) }
	return gv
}

// WithLabels returns the gauge for the label values.
func (gv *GaugeVec) WithLabels(values ...string) *Gauge { return gv.with(values...) }

// GetAll returns every gauge in label order.
func (gv *GaugeVec) GetAll() []*Gauge { return gv.all() }

func (gv *GaugeVec) Name() string { return gv.name }
func (gv *GaugeVec) Help() string { return gv.help }

// HistogramVec is a histogram family partitioned by labels.
type HistogramVec struct{ vec[*Histogram] }

// NewHistogramVec creates a new histogram vector.
func NewHistogramVec(name, help string, labelNames []string, buckets []float64) *HistogramVec {
	hv := &HistogramVec{vec[*Histogram]{name: name, help: help, labelNames: labelNames, children: map[string]*Histogram{}}}
	hv.newChild = func(l map[string]string) *Histogram { return newHistogram(name, help, l, buckets) }
	return hv
}

// WithLabels returns the histogram for the label values.
func (hv *HistogramVec) WithLabels(values ...string) *Histogram { return hv.with(values...) }

// GetAll returns every histogram in label order.
func (hv *HistogramVec) GetAll() []*Histogram { return hv.all() }

func (hv *HistogramVec) Name() string { return hv.name }
func (hv *HistogramVec) Help() string { return hv.help }

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// labelsToKey creates a stable key from a label map.
func labelsToKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	return sb.String()
}
