package metrics

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestHistory(agg Aggregation, keep int) (*MetricHistory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	h := NewMetricHistory("test", agg, time.Minute, keep, nil)
	h.now = clock.now
	h.current = clock.now().Truncate(time.Minute)
	return h, clock
}

func TestMetricHistory_Mean(t *testing.T) {
	h, clock := newTestHistory(Mean, 10)

	h.Record(10)
	h.Record(20)
	clock.advance(time.Minute)
	h.Record(40)

	got := h.Points()
	if len(got) != 2 {
		t.Fatalf("Points() = %v, want 2 points", got)
	}
	if got[0].Value != 15 || got[1].Value != 40 {
		t.Errorf("Points() values = %v/%v, want 15/40", got[0].Value, got[1].Value)
	}
}

func TestMetricHistory_Sum(t *testing.T) {
	h, clock := newTestHistory(Sum, 10)

	h.Record(2)
	h.Record(3)
	clock.advance(time.Minute)

	got := h.Points()
	if len(got) != 1 || got[0].Value != 5 {
		t.Errorf("Points() = %v, want one point of 5", got)
	}
}

func TestMetricHistory_Retention(t *testing.T) {
	h, clock := newTestHistory(Mean, 3)

	for i := 0; i < 5; i++ {
		h.Record(float64(i))
		clock.advance(time.Minute)
	}

	got := h.Points()
	if len(got) != 3 {
		t.Fatalf("len(Points()) = %d, want 3", len(got))
	}
	if got[0].Value != 2 {
		t.Errorf("oldest kept = %v, want 2", got[0].Value)
	}
}

func TestMetricHistory_Since(t *testing.T) {
	h, clock := newTestHistory(Mean, 10)
	start := clock.t

	h.Record(1)
	clock.advance(time.Minute)
	h.Record(2)

	got := h.Since(start.Add(time.Minute))
	if len(got) != 1 || got[0].Value != 2 {
		t.Errorf("Since() = %v, want one point of 2", got)
	}
}

func TestTimeSeriesData(t *testing.T) {
	ts := NewTimeSeriesData(nil)
	clock := &fakeClock{t: time.Date(2026, 5, 4, 10, 1, 0, 0, time.UTC)}
	for _, h := range []*MetricHistory{ts.EvaluationRate, ts.EvaluationLatency, ts.BidsScored} {
		h.now = clock.now
		h.current = clock.now().Truncate(5 * time.Minute)
	}
	ts.RecordEvaluation(20, 3)
	ts.RecordEvaluation(40, 5)

	snap := ts.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot() has %d series, want 3", len(snap))
	}
	lat := snap["evaluation_latency"]
	if len(lat) == 0 || lat[len(lat)-1].Value != 30 {
		t.Errorf("evaluation_latency = %v, want last value 30", lat)
	}
	bids := snap["bids_scored"]
	if len(bids) == 0 || bids[len(bids)-1].Value != 8 {
		t.Errorf("bids_scored = %v, want last value 8", bids)
	}
}
