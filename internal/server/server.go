// Package server provides the HTTP server that wires all services together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/procurepro/tbe/internal/bus"
	"github.com/procurepro/tbe/internal/cache"
	"github.com/procurepro/tbe/internal/config"
	"github.com/procurepro/tbe/internal/evaluation"
	"github.com/procurepro/tbe/internal/metrics"
	"github.com/procurepro/tbe/internal/pkg/logger"
	"github.com/procurepro/tbe/internal/pkg/middleware"
	"github.com/procurepro/tbe/internal/pkg/security"
	"github.com/procurepro/tbe/internal/store"
)

// Server is the main HTTP server that wires all services together.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server

	// Services
	metrics *metrics.Metrics
	cache   cache.Cache
	bus     bus.Bus
	store   *store.Service
	eval    *evaluation.Service
	limiter *middleware.RateLimiter

	// Handlers
	evalHandler *evaluation.Handler

	cancel  context.CancelFunc
	mu      sync.RWMutex
	started bool
	closed  bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration

	// MetricsPath serves the Prometheus exposition. Empty disables it.
	MetricsPath string

	// CORSOrigins is the Access-Control-Allow-Origin value. Empty disables CORS.
	CORSOrigins string
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// ConfigFrom derives the server configuration from the application
// configuration.
func ConfigFrom(appCfg *config.Config, version string) Config {
	cfg := Config{
		Host:            appCfg.Server.Host,
		Port:            appCfg.Server.Port,
		Version:         version,
		ReadTimeout:     appCfg.Server.ReadTimeout,
		WriteTimeout:    appCfg.Server.WriteTimeout,
		ShutdownTimeout: appCfg.Server.ShutdownTimeout,
		CORSOrigins:     appCfg.Security.CORSOrigins,
	}
	if appCfg.Observability.Metrics.Enabled {
		cfg.MetricsPath = appCfg.Observability.MetricsPath
	}
	return cfg
}

// New creates a new server with all dependencies.
func New(cfg Config, appCfg *config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		cfg: cfg,
		log: log,
	}

	s.metrics = metrics.NewWithConfig(appCfg.Observability.Metrics, log)

	c, err := cache.New(appCfg.Cache, s.metrics)
	if err != nil {
		s.metrics.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	s.cache = c

	b, err := bus.NewBus(appCfg.Bus, s.metrics, log)
	if err != nil {
		s.closeServices()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	s.bus = b

	st, err := store.NewService(appCfg.StoreServiceConfig())
	if err != nil {
		s.closeServices()
		return nil, fmt.Errorf("failed to create store service: %w", err)
	}
	s.store = st
	s.metrics.UpdateStoredCount(st.Count())

	ev, err := evaluation.NewService(appCfg.ServiceConfig(), evaluation.Deps{
		Cache:   s.cache,
		Records: s.store,
		Bus:     s.bus,
		Metrics: s.metrics,
		Log:     log,
	})
	if err != nil {
		s.closeServices()
		return nil, fmt.Errorf("failed to create evaluation service: %w", err)
	}
	s.eval = ev
	s.evalHandler = evaluation.NewHandler(ev)

	if rl, ok := appCfg.RateLimiterConfig(); ok {
		s.limiter = middleware.NewRateLimiter(rl)
	}

	return s, nil
}

// Evaluations returns the evaluation service.
func (s *Server) Evaluations() *evaluation.Service {
	return s.eval
}

// Start subscribes the event counters and serves HTTP until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if err := metrics.NewEventSubscriber(s.metrics, s.bus).Subscribe(ctx); err != nil {
		s.log.Warn("Event metrics unavailable", "error", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr, "version", s.cfg.Version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.closeServices()
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.closeServices()

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// closeServices releases every service that was created.
func (s *Server) closeServices() {
	if s.closed {
		return
	}
	s.closed = true
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.log.Warn("Event bus close error", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.Warn("Cache close error", "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.Close()
	}
}

// Handler returns the full HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/evaluations/{id}/export.xlsx", s.handleExport)
	mux.HandleFunc("GET /v1/evaluations/{id}/report", s.handleReport)
	if s.cfg.MetricsPath != "" {
		mux.Handle("GET "+s.cfg.MetricsPath, s.metrics)
	}

	s.evalHandler.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = withLogging(handler, s.log)
	handler = metrics.HTTPMiddleware(s.metrics, handler)
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	if s.cfg.CORSOrigins != "" {
		handler = CORSMiddleware(s.cfg.CORSOrigins, handler)
	}
	return middleware.RequestID(handler)
}

// withLogging logs each request at debug level.
func withLogging(next http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log.WithContext(r.Context()).Debug("HTTP request",
			"method", r.Method,
			"path", security.SanitizeForLog(r.URL.Path),
			"status", wrapped.status,
			"duration", time.Since(start),
			"headers", security.MaskSensitiveHeaders(r.Header),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Health returns the server health status.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
