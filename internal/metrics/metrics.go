package metrics

import (
	"runtime"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/pkg/logger"
	"github.com/procurepro/tbe/internal/pkg/security"
)

// Evaluation statuses used as label values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCached    = "cached"
)

// Config selects where metric history is kept.
type Config struct {
	Enabled     bool   `yaml:"enabled" envconfig:"TBE_METRICS_ENABLED"`
	Persistence string `yaml:"persistence" envconfig:"TBE_METRICS_PERSISTENCE"`
	RedisURL    string `yaml:"redis_url" envconfig:"TBE_METRICS_REDIS_URL"`
}

// Metrics holds all engine metrics.
type Metrics struct {
	// Evaluation metrics
	Evaluations        *CounterVec // labels: status
	EvaluationErrors   *CounterVec // labels: code
	EvaluationDuration *Histogram
	BidsEvaluated      *Counter
	BidsDisqualified   *Counter
	BidsPerEvaluation  *Histogram
	NoCompliantVendor  *Counter
	Warnings           *CounterVec // labels: code
	Recommendations    *CounterVec // labels: category
	Previews           *Counter
	StoredEvaluations  *Gauge

	// Cache metrics
	CacheHits   *CounterVec // labels: type
	CacheMisses *CounterVec // labels: type
	CacheSize   *GaugeVec   // labels: type

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventsConsumed  *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge
	HTTPRequestSize      *HistogramVec // labels: method, path

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge
	Uptime         *Gauge

	// TimeSeries feeds the stats endpoint.
	TimeSeries *TimeSeriesData

	redisStorage *RedisStorage
	startTime    time.Time
	stop         chan struct{}
	closeOnce    sync.Once
}

// New creates an in-memory metrics instance.
func New() *Metrics {
	return NewWithConfig(Config{Enabled: true}, nil)
}

// NewWithConfig creates a metrics instance. With Persistence "redis" the
// time series are stored in Redis; a connection failure falls back to
// memory with a warning.
func NewWithConfig(cfg Config, log *logger.Logger) *Metrics {
	if log == nil {
		log = logger.Discard()
	}

	var storage *RedisStorage
	if cfg.Persistence == "redis" && cfg.RedisURL != "" {
		s, err := NewRedisStorage(cfg.RedisURL)
		if err != nil {
			log.Warn("metrics redis persistence unavailable, using memory",
				"url", security.RedactURL(cfg.RedisURL), "error", err.Error())
		} else {
			storage = s
		}
	}

	m := &Metrics{
		Evaluations: NewCounterVec(
			"tbe_evaluations_total",
			"Total number of evaluation runs",
			[]string{"status"},
		),
		EvaluationErrors: NewCounterVec(
			"tbe_evaluation_errors_total",
			"Failed evaluation runs by error code",
			[]string{"code"},
		),
		EvaluationDuration: NewHistogram(
			"tbe_evaluation_duration_ms",
			"Evaluation run duration in milliseconds",
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		),
		BidsEvaluated: NewCounter(
			"tbe_bids_evaluated_total",
			"Total number of bids scored",
			nil,
		),
		BidsDisqualified: NewCounter(
			"tbe_bids_disqualified_total",
			"Total number of bids disqualified",
			nil,
		),
		BidsPerEvaluation: NewHistogram(
			"tbe_bids_per_evaluation",
			"Number of bids per evaluation run",
			[]float64{1, 2, 3, 5, 10, 20, 50, 100, 250},
		),
		NoCompliantVendor: NewCounter(
			"tbe_no_compliant_vendor_total",
			"Evaluation runs in which no bid qualified",
			nil,
		),
		Warnings: NewCounterVec(
			"tbe_evaluation_warnings_total",
			"Non-fatal evaluation warnings by code",
			[]string{"code"},
		),
		Recommendations: NewCounterVec(
			"tbe_recommendations_total",
			"Ranked bids by recommendation category",
			[]string{"category"},
		),
		Previews: NewCounter(
			"tbe_previews_total",
			"Total number of single-bid score previews",
			nil,
		),
		StoredEvaluations: NewGauge(
			"tbe_stored_evaluations",
			"Evaluation records currently stored",
			nil,
		),

		CacheHits: NewCounterVec(
			"tbe_cache_hits_total",
			"Total number of outcome cache hits",
			[]string{"type"},
		),
		CacheMisses: NewCounterVec(
			"tbe_cache_misses_total",
			"Total number of outcome cache misses",
			[]string{"type"},
		),
		CacheSize: NewGaugeVec(
			"tbe_cache_size",
			"Entries in the outcome cache",
			[]string{"type"},
		),

		BusEventsPublished: NewCounterVec(
			"tbe_bus_events_published_total",
			"Total number of events published",
			[]string{"topic"},
		),
		BusEventsConsumed: NewCounterVec(
			"tbe_bus_events_consumed_total",
			"Total number of events received by subscribers",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"tbe_bus_publish_latency_seconds",
			"Event publish latency in seconds",
			[]string{"topic"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		),
		BusErrors: NewCounterVec(
			"tbe_bus_errors_total",
			"Total number of failed publishes",
			[]string{"topic"},
		),

		HTTPRequests: NewCounterVec(
			"tbe_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"tbe_http_request_duration_seconds",
			"HTTP request duration in seconds",
			[]string{"method", "path"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		),
		HTTPRequestsInFlight: NewGauge(
			"tbe_http_requests_in_flight",
			"HTTP requests currently being served",
			nil,
		),
		HTTPRequestSize: NewHistogramVec(
			"tbe_http_request_size_bytes",
			"HTTP request body size in bytes",
			[]string{"method", "path"},
			[]float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		),

		GoroutineCount: NewGauge("tbe_goroutines", "Number of goroutines", nil),
		MemoryUsage:    NewGauge("tbe_memory_alloc_bytes", "Allocated heap bytes", nil),
		Uptime:         NewGauge("tbe_uptime_seconds", "Seconds since start", nil),

		TimeSeries:   NewTimeSeriesData(storage),
		redisStorage: storage,
		startTime:    time.Now(),
		stop:         make(chan struct{}),
	}

	m.collectSystemMetrics()
	go m.runCollector(15 * time.Second)
	return m
}

func (m *Metrics) runCollector(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.collectSystemMetrics()
		}
	}
}

func (m *Metrics) collectSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))
	m.MemoryUsage.Set(float64(ms.Alloc))
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// UptimeSeconds returns the seconds since m was created.
func (m *Metrics) UptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}

// EvaluationStats is what the service reports after a run.
type EvaluationStats struct {
	Status            string
	DurationMs        int64
	Bids              int
	Disqualified      int
	NoCompliantVendor bool
	WarningCodes      []string
	Recommendations   []string
	Err               error
}

// RecordEvaluation records one evaluation run.
func (m *Metrics) RecordEvaluation(s EvaluationStats) {
	m.Evaluations.WithLabels(s.Status).Inc()
	if s.Err != nil {
		m.EvaluationErrors.WithLabels(errorCode(s.Err)).Inc()
		return
	}

	m.EvaluationDuration.Observe(float64(s.DurationMs))
	m.BidsEvaluated.Add(int64(s.Bids))
	m.BidsDisqualified.Add(int64(s.Disqualified))
	m.BidsPerEvaluation.Observe(float64(s.Bids))
	if s.NoCompliantVendor {
		m.NoCompliantVendor.Inc()
	}
	for _, c := range s.WarningCodes {
		m.Warnings.WithLabels(c).Inc()
	}
	for _, r := range s.Recommendations {
		m.Recommendations.WithLabels(r).Inc()
	}
	if s.Status != StatusCached {
		m.TimeSeries.RecordEvaluation(float64(s.DurationMs), s.Bids)
	}
}

// RecordPreview counts one single-bid preview.
func (m *Metrics) RecordPreview() {
	m.Previews.Inc()
}

// UpdateStoredCount sets the number of stored evaluation records.
func (m *Metrics) UpdateStoredCount(n int) {
	m.StoredEvaluations.Set(float64(n))
}

// RecordBusPublish records event bus publish metrics.
func (m *Metrics) RecordBusPublish(topic string, latencyMs int64, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(float64(latencyMs) / 1000.0)
	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordBusConsume counts one event delivered to a subscriber.
func (m *Metrics) RecordBusConsume(topic string) {
	m.BusEventsConsumed.WithLabels(topic).Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabels(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabels(cacheType).Inc()
}

// UpdateCacheSize updates the cache size.
func (m *Metrics) UpdateCacheSize(cacheType string, size int) {
	m.CacheSize.WithLabels(cacheType).Set(float64(size))
}

// RecordHTTP records one HTTP request. It is called by HTTPMiddleware.
func (m *Metrics) RecordHTTP(method, path string, status int, durationSeconds float64, sizeBytes int64) {
	p := normalizePath(path)
	m.HTTPRequests.WithLabels(method, p, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabels(method, p).Observe(durationSeconds)
	if sizeBytes > 0 {
		m.HTTPRequestSize.WithLabels(method, p).Observe(float64(sizeBytes))
	}
}

// errorCode labels an error by its application code.
func errorCode(err error) string {
	if code := apperrors.Code(err); code != "" {
		return code
	}
	return apperrors.CodeInternal
}

// Close stops background collection and releases Redis.
func (m *Metrics) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stop)
		if m.redisStorage != nil {
			err = m.redisStorage.Close()
		}
	})
	return err
}

// IsRedisPersisted reports whether time series are kept in Redis.
func (m *Metrics) IsRedisPersisted() bool {
	return m.redisStorage != nil
}
