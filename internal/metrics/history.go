package metrics

import (
	"context"
	"sync"
	"time"
)

// DataPoint is one time-series sample.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Aggregation decides how a bucket's observations combine.
type Aggregation int

const (
	// Mean averages observations in a bucket.
	Mean Aggregation = iota
	// Sum adds observations in a bucket.
	Sum
)

// MetricHistory keeps a fixed number of time buckets for one series and
// optionally mirrors closed buckets to Redis.
type MetricHistory struct {
	mu         sync.Mutex
	agg        Aggregation
	bucketSize time.Duration
	maxBuckets int
	buckets    []DataPoint
	current    time.Time
	acc        float64
	count      int64
	now        func() time.Time

	storage *RedisStorage
	name    string
}

// NewMetricHistory creates a history. When storage is non-nil the recent
// window is loaded from Redis and closed buckets are written back.
func NewMetricHistory(name string, agg Aggregation, bucketSize time.Duration, maxBuckets int, storage *RedisStorage) *MetricHistory {
	h := &MetricHistory{
		agg:        agg,
		bucketSize: bucketSize,
		maxBuckets: maxBuckets,
		now:        time.Now,
		storage:    storage,
		name:       name,
	}
	h.current = h.now().Truncate(bucketSize)

	if storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		since := h.current.Add(-time.Duration(maxBuckets) * bucketSize)
		if points, err := storage.LoadHistory(ctx, name, since); err == nil {
			h.buckets = trim(points, maxBuckets)
		}
	}
	return h
}

// Record adds an observation to the current bucket.
func (h *MetricHistory) Record(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roll()
	h.acc += v
	h.count++
}

// roll closes the current bucket when the clock has moved past it. Empty
// Mean buckets are dropped; empty Sum buckets record zero.
func (h *MetricHistory) roll() {
	bucket := h.now().Truncate(h.bucketSize)
	if !bucket.After(h.current) {
		return
	}
	if dp, ok := h.value(); ok {
		h.buckets = trim(append(h.buckets, dp), h.maxBuckets)
		h.persist(dp)
	}
	h.current = bucket
	h.acc, h.count = 0, 0
}

func (h *MetricHistory) value() (DataPoint, bool) {
	switch {
	case h.agg == Sum:
		return DataPoint{Timestamp: h.current, Value: h.acc}, true
	case h.count > 0:
		return DataPoint{Timestamp: h.current, Value: h.acc / float64(h.count)}, true
	}
	return DataPoint{}, false
}

func (h *MetricHistory) persist(dp DataPoint) {
	if h.storage == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.storage.SaveDataPoint(ctx, h.name, dp)
	}()
}

// Points returns the closed buckets followed by the open one when it has
// data.
func (h *MetricHistory) Points() []DataPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roll()

	out := append([]DataPoint(nil), h.buckets...)
	if h.count > 0 {
		dp, _ := h.value()
		out = append(out, dp)
	}
	return out
}

// Since returns points at or after t.
func (h *MetricHistory) Since(t time.Time) []DataPoint {
	var out []DataPoint
	for _, dp := range h.Points() {
		if !dp.Timestamp.Before(t) {
			out = append(out, dp)
		}
	}
	return out
}

func trim(points []DataPoint, max int) []DataPoint {
	if len(points) > max {
		return points[len(points)-max:]
	}
	return points
}

// TimeSeriesData holds the series shown by the stats endpoint: five
// minute buckets over the last hour.
type TimeSeriesData struct {
	EvaluationRate    *MetricHistory // runs per bucket
	EvaluationLatency *MetricHistory // mean duration in ms
	BidsScored        *MetricHistory // bids per bucket
}

// NewTimeSeriesData creates the series, backed by storage when non-nil.
func NewTimeSeriesData(storage *RedisStorage) *TimeSeriesData {
	const bucket, keep = 5 * time.Minute, 12
	return &TimeSeriesData{
		EvaluationRate:    NewMetricHistory("evaluation_rate", Sum, bucket, keep, storage),
		EvaluationLatency: NewMetricHistory("evaluation_latency", Mean, bucket, keep, storage),
		BidsScored:        NewMetricHistory("bids_scored", Sum, bucket, keep, storage),
	}
}

// RecordEvaluation adds one completed run.
func (t *TimeSeriesData) RecordEvaluation(durationMs float64, bids int) {
	t.EvaluationRate.Record(1)
	t.EvaluationLatency.Record(durationMs)
	t.BidsScored.Record(float64(bids))
}

// Snapshot returns every series keyed by name.
func (t *TimeSeriesData) Snapshot() map[string][]DataPoint {
	return map[string][]DataPoint{
		"evaluation_rate":    t.EvaluationRate.Points(),
		"evaluation_latency": t.EvaluationLatency.Points(),
		"bids_scored":        t.BidsScored.Points(),
	}
}
