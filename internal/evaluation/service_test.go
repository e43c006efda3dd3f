package evaluation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/procurepro/tbe/internal/bid"
	"github.com/procurepro/tbe/internal/bus"
	"github.com/procurepro/tbe/internal/cache"
	"github.com/procurepro/tbe/internal/metrics"
	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/pkg/logger"
	"github.com/procurepro/tbe/internal/scoring"
	"github.com/procurepro/tbe/internal/store"
	"github.com/procurepro/tbe/internal/tco"
)

type published struct {
	topic string
	event bus.Event
}

// recordingBus captures events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Publish(_ context.Context, topic string, e bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{topic, e})
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string, bus.Handler) error { return nil }
func (b *recordingBus) Close() error                                         { return nil }

func (b *recordingBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, p := range b.events {
		out[i] = p.topic
	}
	return out
}

type serviceFixture struct {
	svc     *Service
	bus     *recordingBus
	metrics *metrics.Metrics
	cache   *cache.MemoryCache
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	m := metrics.New()
	t.Cleanup(func() { m.Close() })

	f := serviceFixture{bus: &recordingBus{}, metrics: m, cache: cache.NewMemoryCache(100, time.Hour)}
	svc, err := NewService(DefaultConfig(), Deps{
		Cache:   f.cache,
		Bus:     f.bus,
		Metrics: m,
		Log:     logger.Discard(),
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	f.svc = svc
	return f
}

func referenceRequest() Request {
	return Request{
		RFQID:             "RFQ-1",
		Bids:              exampleBids(),
		RequiredStandards: bid.Required("ISO 9001"),
	}
}

func TestNewService_RejectsBadDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = scoring.Weights{Price: 0.9, Quality: 0.9}
	if _, err := NewService(cfg, Deps{}); err == nil {
		t.Error("NewService() with weights summing to 1.8 should fail")
	}

	cfg = DefaultConfig()
	cfg.TCO.DiscountRate = -1
	if _, err := NewService(cfg, Deps{}); err == nil {
		t.Error("NewService() with discount rate -100% should fail")
	}
}

func TestService_Evaluate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	run, err := f.svc.Evaluate(ctx, referenceRequest())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if run.ID == "" || run.Fingerprint == "" {
		t.Fatalf("run = %+v, want ID and fingerprint", run)
	}
	if run.Cached {
		t.Error("first run should not be cached")
	}
	if run.Outcome.RecommendedBidID != "A" {
		t.Errorf("RecommendedBidID = %q, want A", run.Outcome.RecommendedBidID)
	}

	rec, err := f.svc.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != store.StatusCompleted || rec.BidCount != 2 || rec.RFQID != "RFQ-1" {
		t.Errorf("record = %+v", rec.Summary())
	}

	stored, err := f.svc.Outcome(ctx, run.ID)
	if err != nil {
		t.Fatalf("Outcome() error = %v", err)
	}
	if got := mustResult(t, stored, "A").Total; got != 76.5 {
		t.Errorf("stored A total = %v, want 76.5", got)
	}

	if got := f.bus.topics(); len(got) != 1 || got[0] != bus.TopicEvaluationCompleted {
		t.Errorf("published topics = %v, want [%s]", got, bus.TopicEvaluationCompleted)
	}
	e := f.bus.events[0].event
	if e.Key != "RFQ-1" || e.Type != EventCompleted {
		t.Errorf("event key/type = %q/%q", e.Key, e.Type)
	}
	if got := f.metrics.Evaluations.WithLabels(metrics.StatusCompleted).Value(); got != 1 {
		t.Errorf("completed evaluations = %d, want 1", got)
	}
	if got := f.metrics.StoredEvaluations.Value(); got != 1 {
		t.Errorf("stored gauge = %v, want 1", got)
	}
}

func TestService_EvaluateCached(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.svc.Evaluate(ctx, referenceRequest())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	second, err := f.svc.Evaluate(ctx, referenceRequest())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if !second.Cached {
		t.Error("identical request should be served from cache")
	}
	if first.ID == second.ID {
		t.Error("cached run must get its own ID")
	}
	if first.Fingerprint != second.Fingerprint {
		t.Error("identical requests must share a fingerprint")
	}
	if second.Outcome.RecommendedBidID != first.Outcome.RecommendedBidID {
		t.Error("cached outcome differs from computed outcome")
	}
	if got := len(f.svc.List(ctx, store.ListFilter{})); got != 2 {
		t.Errorf("List() = %d records, want 2", got)
	}
	if got := f.metrics.Evaluations.WithLabels(metrics.StatusCached).Value(); got != 1 {
		t.Errorf("cached evaluations = %d, want 1", got)
	}
}

func TestService_DefaultsMatchExplicit(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	implicit := referenceRequest()
	explicit := referenceRequest()
	w := scoring.DefaultWeights()
	explicit.Weights = &w
	explicit.Options = DefaultOptions()

	a, err := f.svc.Evaluate(ctx, implicit)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	b, err := f.svc.Evaluate(ctx, explicit)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if a.Fingerprint != b.Fingerprint {
		t.Error("a request relying on defaults should fingerprint like its explicit form")
	}
}

func TestService_EvaluateFailure(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Evaluate(ctx, Request{RFQID: "RFQ-empty"})
	if !apperrors.IsCode(err, apperrors.CodeEmptyBidSet) {
		t.Fatalf("Evaluate() error = %v, want EMPTY_BID_SET", err)
	}

	recs := f.svc.List(ctx, store.ListFilter{RFQID: "RFQ-empty"})
	if len(recs) != 1 || recs[0].Status != store.StatusFailed {
		t.Fatalf("failed run records = %+v, want one failed record", recs)
	}
	if _, err := f.svc.Outcome(ctx, recs[0].ID); !apperrors.IsNotFound(err) {
		t.Errorf("Outcome() of failed run error = %v, want NOT_FOUND", err)
	}
	if got := f.bus.topics(); len(got) != 1 || got[0] != bus.TopicEvaluationFailed {
		t.Errorf("published topics = %v, want [%s]", got, bus.TopicEvaluationFailed)
	}
	if got := f.metrics.EvaluationErrors.WithLabels(apperrors.CodeEmptyBidSet).Value(); got != 1 {
		t.Errorf("EMPTY_BID_SET errors = %d, want 1", got)
	}
}

func TestService_EvaluateCancelled(t *testing.T) {
	f := newServiceFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.Evaluate(ctx, referenceRequest()); !apperrors.IsCode(err, apperrors.CodeTimeout) {
		t.Errorf("Evaluate() error = %v, want TIMEOUT", err)
	}
	if got := len(f.bus.topics()); got != 0 {
		t.Errorf("published %d events for a cancelled run", got)
	}
}

func TestService_Delete(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	run, err := f.svc.Evaluate(ctx, referenceRequest())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if err := f.svc.Delete(ctx, run.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.svc.Get(ctx, run.ID); !apperrors.IsNotFound(err) {
		t.Errorf("Get() after Delete error = %v, want NOT_FOUND", err)
	}
	if err := f.svc.Delete(ctx, run.ID); !apperrors.IsNotFound(err) {
		t.Errorf("second Delete() error = %v, want NOT_FOUND", err)
	}

	topics := f.bus.topics()
	if topics[len(topics)-1] != bus.TopicEvaluationDeleted {
		t.Errorf("last topic = %s, want %s", topics[len(topics)-1], bus.TopicEvaluationDeleted)
	}
}

func TestService_InvalidID(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Get(ctx, "../etc/passwd"); !apperrors.IsCode(err, apperrors.CodeInvalidRequest) {
		t.Errorf("Get() error = %v, want INVALID_REQUEST", err)
	}
	if err := f.svc.Delete(ctx, ""); !apperrors.IsCode(err, apperrors.CodeInvalidRequest) {
		t.Errorf("Delete() error = %v, want INVALID_REQUEST", err)
	}
}

func TestService_EvaluateBatch(t *testing.T) {
	f := newServiceFixture(t)

	reqs := []Request{
		referenceRequest(),
		{RFQID: "RFQ-empty"},
		{RFQID: "RFQ-3", Bids: exampleBids()},
	}
	items, err := f.svc.EvaluateBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("EvaluateBatch() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	for i, it := range items {
		if it.Index != i {
			t.Errorf("items[%d].Index = %d", i, it.Index)
		}
	}
	if items[0].Run == nil || items[2].Run == nil {
		t.Error("valid requests should produce runs")
	}
	if items[1].Error == nil || items[1].Error.Code != apperrors.CodeEmptyBidSet {
		t.Errorf("items[1].Error = %+v, want EMPTY_BID_SET", items[1].Error)
	}
}

func TestService_EvaluateBatchOverflowingCosts(t *testing.T) {
	f := newServiceFixture(t)

	req := referenceRequest()
	req.Bids[0].Maintenance = []float64{1000, 1000, 1000}
	req.TCO = &tco.Config{LifespanYears: 3, InflationRate: 1e200}

	items, err := f.svc.EvaluateBatch(context.Background(), []Request{req})
	if err != nil {
		t.Fatalf("EvaluateBatch() error = %v", err)
	}
	if items[0].Run == nil {
		t.Fatalf("items[0] = %+v, want a run", items[0])
	}
	warnings := items[0].Run.Outcome.Warnings
	if len(warnings) != 1 || warnings[0].Code != apperrors.CodeInvalidCostInput || warnings[0].Field != "total" {
		t.Errorf("warnings = %+v", warnings)
	}
}

func TestService_EvaluateBatchCancelled(t *testing.T) {
	f := newServiceFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.EvaluateBatch(ctx, []Request{referenceRequest()}); err == nil {
		t.Error("EvaluateBatch() with cancelled context should fail")
	}
}

func TestService_Preview(t *testing.T) {
	f := newServiceFixture(t)

	b := exampleBids()[0]
	res, err := f.svc.Preview(context.Background(), b, PreviewContext{
		Ranges: scoring.Ranges{
			Price:    scoring.NewRange(100, 150),
			Delivery: scoring.NewRange(5, 10),
		},
		RequiredStandards: bid.Required("ISO 9001"),
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if res.Total != 76.5 {
		t.Errorf("preview total = %v, want 76.5", res.Total)
	}
	if got := f.metrics.Previews.Value(); got != 1 {
		t.Errorf("previews = %d, want 1", got)
	}
	if got := len(f.bus.topics()); got != 0 {
		t.Errorf("preview published %d events, want 0", got)
	}
}

func TestService_MergesPartialOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Options.MinCompliance = bid.Float(60)
	cfg.Options.PriceMethod = scoring.PriceRatio
	svc, err := NewService(cfg, Deps{Log: logger.Discard()})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	req := referenceRequest()
	req.Bids[1].Standards = nil
	req.Options = Options{StrictIncomplete: bid.Bool(true)}

	run, err := svc.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if b := mustResult(t, run.Outcome, "B"); !b.Disqualified {
		t.Errorf("B at %v%% compliance should be disqualified by the configured floor", b.CompliancePct)
	}
	opts := run.Outcome.Config.Options
	if opts.MinCompliancePct() != 60 || opts.PriceMethod != scoring.PriceRatio || !opts.Strict() {
		t.Errorf("effective options = min %v method %s strict %v", opts.MinCompliancePct(), opts.PriceMethod, opts.Strict())
	}

	req.Options = Options{MinCompliance: bid.Float(0)}
	run, err = svc.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if b := mustResult(t, run.Outcome, "B"); b.Disqualified {
		t.Error("an explicit zero floor should override the configured one")
	}
}

func TestService_PreviewMergesOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Options.MinCompliance = bid.Float(60)
	svc, err := NewService(cfg, Deps{Log: logger.Discard()})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	b := exampleBids()[1]
	b.Standards = nil
	res, err := svc.Preview(context.Background(), b, PreviewContext{
		RequiredStandards: bid.Required("ISO 9001"),
		Options:           Options{PriceSource: PriceQuoted},
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if !res.Disqualified {
		t.Error("preview should apply the configured compliance floor")
	}
}
