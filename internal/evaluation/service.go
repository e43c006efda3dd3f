package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/procurepro/tbe/internal/bid"
	"github.com/procurepro/tbe/internal/bus"
	"github.com/procurepro/tbe/internal/cache"
	"github.com/procurepro/tbe/internal/metrics"
	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/pkg/hash"
	"github.com/procurepro/tbe/internal/pkg/logger"
	"github.com/procurepro/tbe/internal/pkg/security"
	"github.com/procurepro/tbe/internal/scoring"
	"github.com/procurepro/tbe/internal/store"
	"github.com/procurepro/tbe/internal/tco"
)

const (
	// cacheNamespace prefixes outcome cache keys.
	cacheNamespace = "tbe:outcome"
	// eventSource identifies the engine on published events.
	eventSource = "tbe-engine"
	// defaultBatchConcurrency bounds parallel runs in EvaluateBatch.
	defaultBatchConcurrency = 4
)

// Event types.
const (
	EventCompleted = "evaluation.completed"
	EventFailed    = "evaluation.failed"
	EventDeleted   = "evaluation.deleted"
)

// Config holds the organization defaults the service applies to requests
// that leave them out.
type Config struct {
	Weights          scoring.Weights
	TCO              tco.Config
	Options          Options
	BatchConcurrency int
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Weights:          scoring.DefaultWeights(),
		TCO:              tco.DefaultConfig(),
		Options:          DefaultOptions(),
		BatchConcurrency: defaultBatchConcurrency,
	}
}

// Service wraps the pure pipeline with run IDs, an outcome cache, record
// storage, lifecycle events and metrics. Every collaborator is optional.
type Service struct {
	cfg     Config
	cache   cache.Cache
	records *store.Service
	bus     bus.Bus
	metrics *metrics.Metrics
	log     *logger.Logger

	newID func() string
	now   func() time.Time
}

// Deps are the service's collaborators. Nil fields disable the concern,
// except Records which falls back to an in-memory store.
type Deps struct {
	Cache   cache.Cache
	Records *store.Service
	Bus     bus.Bus
	Metrics *metrics.Metrics
	Log     *logger.Logger
}

// NewService creates an evaluation service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}
	if _, err := scoring.NewWeightConfig(cfg.Weights, nil); err != nil {
		return nil, fmt.Errorf("default weights: %w", err)
	}
	if err := cfg.TCO.Validate(); err != nil {
		return nil, fmt.Errorf("default tco config: %w", err)
	}
	if _, err := cfg.Options.withDefaults(); err != nil {
		return nil, fmt.Errorf("default options: %w", err)
	}

	s := &Service{
		cfg:     cfg,
		cache:   deps.Cache,
		records: deps.Records,
		bus:     deps.Bus,
		metrics: deps.Metrics,
		log:     deps.Log,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.bus == nil {
		s.bus = bus.Nop{}
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.records == nil {
		records, err := store.NewServiceWithStorage(store.NewMemoryStorage())
		if err != nil {
			return nil, err
		}
		s.records = records
	}
	return s, nil
}

// Run is one evaluation as returned by the service.
type Run struct {
	ID          string    `json:"id"`
	RFQID       string    `json:"rfq_id,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	Cached      bool      `json:"cached"`
	CreatedAt   time.Time `json:"created_at"`
	DurationMs  int64     `json:"duration_ms"`
	Outcome     *Outcome  `json:"outcome"`
}

// EventPayload is the body of evaluation lifecycle events.
type EventPayload struct {
	EvaluationID      string `json:"evaluation_id"`
	RFQID             string `json:"rfq_id,omitempty"`
	Fingerprint       string `json:"fingerprint,omitempty"`
	BidCount          int    `json:"bid_count,omitempty"`
	RecommendedBidID  string `json:"recommended_bid_id,omitempty"`
	NoCompliantVendor bool   `json:"no_compliant_vendor,omitempty"`
	WarningCount      int    `json:"warning_count,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
	Error             string `json:"error,omitempty"`
}

// withDefaults fills the parts of req the caller left out from the
// service configuration. Options merge field by field.
func (s *Service) withDefaults(req Request) Request {
	if req.Weights == nil {
		w := s.cfg.Weights
		req.Weights = &w
	}
	if req.TCO == nil {
		t := s.cfg.TCO
		req.TCO = &t
	}
	req.Options = req.Options.Merge(s.cfg.Options)
	return req
}

// Evaluate runs one evaluation. Identical inputs are served from the
// cache; every run, cached or not, gets its own ID and record.
func (s *Service) Evaluate(ctx context.Context, req Request) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTimeout, "evaluation cancelled", err)
	}

	req = s.withDefaults(req)
	run := &Run{ID: s.newID(), RFQID: req.RFQID, CreatedAt: s.now().UTC()}
	log := s.log.WithContext(ctx).WithEvaluation(run.ID)

	fp, err := hash.Fingerprint(req)
	if err != nil {
		return nil, apperrors.InvalidRequestError(err.Error())
	}
	run.Fingerprint = fp
	key := hash.CacheKey(cacheNamespace, fp)

	start := time.Now()
	outcome, encoded := s.cached(ctx, key, log)
	if outcome != nil {
		run.Cached = true
	} else {
		outcome, err = Evaluate(req)
		if err != nil {
			run.DurationMs = time.Since(start).Milliseconds()
			s.fail(ctx, run, len(req.Bids), err, log)
			return nil, err
		}
		encoded, err = json.Marshal(outcome)
		if err != nil {
			return nil, apperrors.InternalError("failed to encode outcome", err)
		}
		if err := s.cache.Set(ctx, key, encoded); err != nil {
			log.Warn("failed to cache outcome", "error", err.Error())
		}
	}
	run.DurationMs = time.Since(start).Milliseconds()
	run.Outcome = outcome

	rec := &store.Record{
		ID:                run.ID,
		RFQID:             run.RFQID,
		Fingerprint:       fp,
		Status:            store.StatusCompleted,
		BidCount:          len(outcome.Results),
		RecommendedBidID:  outcome.RecommendedBidID,
		NoCompliantVendor: outcome.NoCompliantVendor,
		WarningCount:      len(outcome.Warnings),
		CreatedAt:         run.CreatedAt,
		DurationMs:        run.DurationMs,
		Outcome:           encoded,
	}
	if err := s.records.Put(ctx, rec); err != nil {
		return nil, apperrors.InternalError("failed to store evaluation", err)
	}

	s.publish(ctx, bus.TopicEvaluationCompleted, EventCompleted, run.RFQID, EventPayload{
		EvaluationID:      run.ID,
		RFQID:             run.RFQID,
		Fingerprint:       fp,
		BidCount:          rec.BidCount,
		RecommendedBidID:  rec.RecommendedBidID,
		NoCompliantVendor: rec.NoCompliantVendor,
		WarningCount:      rec.WarningCount,
	}, log)
	s.record(run, outcome)

	log.Info("evaluation completed",
		"rfq_id", security.SanitizeForLog(run.RFQID),
		"bids", rec.BidCount,
		"recommended", rec.RecommendedBidID,
		"warnings", rec.WarningCount,
		"cached", run.Cached,
		"duration_ms", run.DurationMs,
	)
	return run, nil
}

// cached returns the decoded outcome for key and its encoding, or nil on
// a miss. Cache errors and undecodable entries count as misses.
func (s *Service) cached(ctx context.Context, key string, log *logger.Logger) (*Outcome, []byte) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn("outcome cache unavailable", "error", err.Error())
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	var out Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		log.Warn("discarding undecodable cached outcome", "error", err.Error())
		_ = s.cache.Delete(ctx, key)
		return nil, nil
	}
	return &out, data
}

// fail records and announces a failed run.
func (s *Service) fail(ctx context.Context, run *Run, bids int, err error, log *logger.Logger) {
	log.WithError(err).Warn("evaluation failed", "rfq_id", security.SanitizeForLog(run.RFQID), "code", apperrors.Code(err))

	rec := &store.Record{
		ID:          run.ID,
		RFQID:       run.RFQID,
		Fingerprint: run.Fingerprint,
		Status:      store.StatusFailed,
		BidCount:    bids,
		Error:       err.Error(),
		CreatedAt:   run.CreatedAt,
		DurationMs:  run.DurationMs,
	}
	if perr := s.records.Put(ctx, rec); perr != nil {
		log.Warn("failed to store failed evaluation", "error", perr.Error())
	}

	s.publish(ctx, bus.TopicEvaluationFailed, EventFailed, run.RFQID, EventPayload{
		EvaluationID: run.ID,
		RFQID:        run.RFQID,
		Fingerprint:  run.Fingerprint,
		BidCount:     bids,
		ErrorCode:    apperrors.Code(err),
		Error:        err.Error(),
	}, log)

	if s.metrics != nil {
		s.metrics.RecordEvaluation(metrics.EvaluationStats{Status: metrics.StatusFailed, Err: err})
		s.metrics.UpdateStoredCount(s.records.Count())
	}
}

// publish sends an event. Bus failures are logged, never returned.
func (s *Service) publish(ctx context.Context, topic, eventType, key string, payload EventPayload, log *logger.Logger) {
	e := bus.NewEvent(eventType, eventSource, payload)
	e.Key = key
	e.CorrelationID = logger.RequestID(ctx)
	if err := s.bus.Publish(ctx, topic, e); err != nil {
		log.Warn("failed to publish event", "topic", topic, "error", err.Error())
	}
}

func (s *Service) record(run *Run, o *Outcome) {
	if s.metrics == nil {
		return
	}
	st := metrics.EvaluationStats{
		Status:            metrics.StatusCompleted,
		DurationMs:        run.DurationMs,
		Bids:              len(o.Results),
		NoCompliantVendor: o.NoCompliantVendor,
	}
	if run.Cached {
		st.Status = metrics.StatusCached
	}
	for _, r := range o.Results {
		if r.Disqualified {
			st.Disqualified++
		}
		if r.Recommendation != "" {
			st.Recommendations = append(st.Recommendations, string(r.Recommendation))
		}
	}
	for _, w := range o.Warnings {
		st.WarningCodes = append(st.WarningCodes, w.Code)
	}
	s.metrics.RecordEvaluation(st)
	s.metrics.UpdateStoredCount(s.records.Count())
}

// BatchItem is one request's result within EvaluateBatch. Exactly one of
// Run and Error is set.
type BatchItem struct {
	Index int                      `json:"index"`
	Run   *Run                     `json:"run,omitempty"`
	Error *apperrors.ErrorResponse `json:"error,omitempty"`
}

// EvaluateBatch evaluates independent requests concurrently. A failing
// request is reported in its item and does not stop the others; only
// cancellation of ctx fails the batch.
func (s *Service) EvaluateBatch(ctx context.Context, reqs []Request) ([]BatchItem, error) {
	items := make([]BatchItem, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)
	for i := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i].Index = i
			run, err := s.Evaluate(gctx, reqs[i])
			if err != nil {
				_, resp := apperrors.Response(err)
				items[i].Error = &resp
				return nil
			}
			items[i].Run = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTimeout, "batch evaluation cancelled", err)
	}
	return items, nil
}

// previewDefaults fills pc from the configured defaults the same way
// withDefaults does for a full request.
func (s *Service) previewDefaults(pc PreviewContext) PreviewContext {
	if pc.Weights == nil {
		w := s.cfg.Weights
		pc.Weights = &w
	}
	if pc.TCO == nil {
		t := s.cfg.TCO
		pc.TCO = &t
	}
	pc.Options = pc.Options.Merge(s.cfg.Options)
	return pc
}

// Preview scores one bid against caller-supplied ranges. Nothing is
// cached, stored or published.
func (s *Service) Preview(ctx context.Context, b bid.VendorBid, pc PreviewContext) (*ScoreResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTimeout, "preview cancelled", err)
	}
	res, err := CalculateSingleScore(b, s.previewDefaults(pc))
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordPreview()
	}
	return res, nil
}

// Get returns the stored record for id.
func (s *Service) Get(ctx context.Context, id string) (*store.Record, error) {
	if err := store.ValidateID(id); err != nil {
		return nil, apperrors.InvalidRequestError(err.Error())
	}
	return s.records.Get(ctx, id)
}

// Outcome decodes the stored outcome of a completed run.
func (s *Service) Outcome(ctx context.Context, id string) (*Outcome, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != store.StatusCompleted || len(rec.Outcome) == 0 {
		return nil, apperrors.New(apperrors.CodeNotFound, "evaluation has no outcome").
			WithDetail("id", id).
			WithDetail("status", rec.Status)
	}
	var out Outcome
	if err := json.Unmarshal(rec.Outcome, &out); err != nil {
		return nil, apperrors.InternalError("failed to decode stored outcome", err)
	}
	return &out, nil
}

// List returns stored run summaries, newest first.
func (s *Service) List(ctx context.Context, f store.ListFilter) []store.Record {
	return s.records.List(ctx, f)
}

// Delete removes a stored run and announces it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := store.ValidateID(id); err != nil {
		return apperrors.InvalidRequestError(err.Error())
	}
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}

	log := s.log.WithContext(ctx).WithEvaluation(id)
	s.publish(ctx, bus.TopicEvaluationDeleted, EventDeleted, rec.RFQID, EventPayload{
		EvaluationID: id,
		RFQID:        rec.RFQID,
	}, log)
	if s.metrics != nil {
		s.metrics.UpdateStoredCount(s.records.Count())
	}
	log.Info("evaluation deleted")
	return nil
}
