package metrics

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/procurepro/tbe/internal/bus"
	"github.com/procurepro/tbe/internal/cache"
	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/store"
)

var (
	_ cache.Metrics       = (*Metrics)(nil)
	_ bus.MetricsRecorder = (*Metrics)(nil)
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m := New()
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCounter(t *testing.T) {
	c := NewCounter("c", "help", nil)
	c.Inc()
	c.Add(4)
	c.Add(-10)
	if got := c.Value(); got != 5 {
		t.Errorf("Value() = %d, want 5", got)
	}
	c.Reset()
	if got := c.Value(); got != 0 {
		t.Errorf("Value() after Reset = %d, want 0", got)
	}
}

func TestGauge_Fractional(t *testing.T) {
	g := NewGauge("g", "help", nil)
	g.Set(1.5)
	g.Add(0.25)
	g.Dec()
	if got := g.Value(); got != 0.75 {
		t.Errorf("Value() = %v, want 0.75", got)
	}
}

func TestGauge_Concurrent(t *testing.T) {
	g := NewGauge("g", "help", nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Inc()
		}()
	}
	wg.Wait()
	if got := g.Value(); got != 50 {
		t.Errorf("Value() = %v, want 50", got)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("h", "help", []float64{10, 1, 5})
	for _, v := range []float64{0.5, 1, 3, 7, 100} {
		h.Observe(v)
	}

	wantBuckets := []float64{1, 5, 10}
	for i, b := range h.Buckets() {
		if b != wantBuckets[i] {
			t.Errorf("Buckets()[%d] = %v, want %v", i, b, wantBuckets[i])
		}
	}

	want := []int64{2, 3, 4, 5}
	got := h.BucketCounts()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BucketCounts()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if h.Count() != 5 {
		t.Errorf("Count() = %d, want 5", h.Count())
	}
	if h.Sum() != 111.5 {
		t.Errorf("Sum() = %v, want 111.5", h.Sum())
	}
}

func TestCounterVec(t *testing.T) {
	cv := NewCounterVec("v", "help", []string{"status"})
	cv.WithLabels("completed").Inc()
	cv.WithLabels("completed").Inc()
	cv.WithLabels("failed").Inc()

	if got := cv.WithLabels("completed").Value(); got != 2 {
		t.Errorf("completed = %d, want 2", got)
	}
	if got := cv.Total(); got != 3 {
		t.Errorf("Total() = %d, want 3", got)
	}
	all := cv.GetAll()
	if len(all) != 2 || all[0].Labels()["status"] != "completed" {
		t.Errorf("GetAll() not ordered by label: %v", all)
	}
}

func TestCounterVec_WrongLabelCount(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("WithLabels() with wrong label count should panic")
		}
	}()
	NewCounterVec("v", "help", []string{"a", "b"}).WithLabels("only-one")
}

func TestRecordEvaluation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordEvaluation(EvaluationStats{
		Status:            StatusCompleted,
		DurationMs:        12,
		Bids:              4,
		Disqualified:      1,
		NoCompliantVendor: false,
		WarningCodes:      []string{"INVALID_COST_INPUT"},
		Recommendations:   []string{"recommended", "acceptable", "disqualified"},
	})
	m.RecordEvaluation(EvaluationStats{
		Status: StatusFailed,
		Err:    apperrors.EmptyBidSet(),
	})

	if got := m.Evaluations.WithLabels(StatusCompleted).Value(); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
	if got := m.EvaluationErrors.WithLabels(apperrors.CodeEmptyBidSet).Value(); got != 1 {
		t.Errorf("EMPTY_BID_SET errors = %d, want 1", got)
	}
	if got := m.BidsEvaluated.Value(); got != 4 {
		t.Errorf("BidsEvaluated = %d, want 4", got)
	}
	if got := m.BidsDisqualified.Value(); got != 1 {
		t.Errorf("BidsDisqualified = %d, want 1", got)
	}
	if got := m.Warnings.WithLabels("INVALID_COST_INPUT").Value(); got != 1 {
		t.Errorf("warnings = %d, want 1", got)
	}
	if got := m.Recommendations.Total(); got != 3 {
		t.Errorf("recommendations = %d, want 3", got)
	}
}

func TestRecordBusPublish(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordBusPublish(bus.TopicEvaluationCompleted, 3, nil)
	m.RecordBusPublish(bus.TopicEvaluationCompleted, 4, apperrors.New(apperrors.CodeUnavailable, "down"))

	if got := m.BusEventsPublished.WithLabels(bus.TopicEvaluationCompleted).Value(); got != 2 {
		t.Errorf("published = %d, want 2", got)
	}
	if got := m.BusErrors.WithLabels(bus.TopicEvaluationCompleted).Value(); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestPrometheusFormat(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordEvaluation(EvaluationStats{Status: StatusCompleted, DurationMs: 7, Bids: 2})
	m.RecordCacheHit("memory")
	m.RecordHTTP("GET", "/v1/evaluations/ev-1/matrix", 200, 0.01, 0)

	out := m.PrometheusFormat()
	for _, want := range []string{
		"# TYPE tbe_evaluations_total counter",
		`tbe_evaluations_total{status="completed"} 1`,
		`tbe_evaluation_duration_ms_bucket{le="10"} 1`,
		`tbe_evaluation_duration_ms_bucket{le="+Inf"} 1`,
		"tbe_evaluation_duration_ms_count 1",
		`tbe_cache_hits_total{type="memory"} 1`,
		`tbe_http_requests_total{method="GET",path="/v1/evaluations/{id}/matrix",status="200"} 1`,
		"# TYPE tbe_http_request_duration_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("PrometheusFormat() missing %q", want)
		}
	}
	if strings.Contains(out, "tbe_bus_errors_total") {
		t.Error("empty vectors should be omitted")
	}
}

func TestEscapeString(t *testing.T) {
	if got := escapeString("a\"b\\c\nd"); got != `a\"b\\c\nd` {
		t.Errorf("escapeString() = %q", got)
	}
}

func TestCollector(t *testing.T) {
	m := newTestMetrics(t)
	records, err := store.NewServiceWithStorage(store.NewMemoryStorage())
	if err != nil {
		t.Fatalf("NewServiceWithStorage() error = %v", err)
	}
	c := cache.NewMemoryCache(10, time.Minute)
	c.Set(context.Background(), "k", []byte("v"))

	m.RecordEvaluation(EvaluationStats{Status: StatusCompleted, Bids: 3})
	s := NewCollector(m, records, c).Collect()

	if s.Evaluations[StatusCompleted] != 1 {
		t.Errorf("Evaluations[completed] = %d, want 1", s.Evaluations[StatusCompleted])
	}
	if s.BidsEvaluated != 3 {
		t.Errorf("BidsEvaluated = %d, want 3", s.BidsEvaluated)
	}
	if s.Cache.Size != 1 {
		t.Errorf("Cache.Size = %d, want 1", s.Cache.Size)
	}
	if got := m.CacheSize.WithLabels(s.Cache.Type).Value(); got != 1 {
		t.Errorf("cache size gauge = %v, want 1", got)
	}
	if _, ok := s.Series["evaluation_rate"]; !ok {
		t.Error("Series missing evaluation_rate")
	}
}

func TestEventSubscriber(t *testing.T) {
	m := newTestMetrics(t)
	b := bus.NewMemoryBus(nil)

	if err := NewEventSubscriber(m, b).Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	b.Publish(context.Background(), bus.TopicEvaluationDeleted, bus.NewEvent("evaluation.deleted", "test", nil))
	b.Close()

	if got := m.BusEventsConsumed.WithLabels(bus.TopicEvaluationDeleted).Value(); got != 1 {
		t.Errorf("consumed = %d, want 1", got)
	}
}

func TestClose_Idempotent(t *testing.T) {
	m := New()
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
