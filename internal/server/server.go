// Package server provides the HTTP server that wires the evaluation
// services together.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/metrics"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/middleware"
	"github.com/ricesearch/rice-eval/internal/snapshot"
)

// Server is the main HTTP server that wires all services together.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server

	// Services
	bus        bus.Bus
	store      snapshot.Store
	aggregator *evaluation.Aggregator
	runner     *evaluation.Runner
	limiter    *middleware.RateLimiter
	metrics    *metrics.Metrics

	evalHandler *evaluation.Handler

	mu      sync.RWMutex
	started bool
	done    chan struct{}
}

// aggregatorRetention is how long an idle run stays in the aggregator.
const aggregatorRetention = 15 * time.Minute

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
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8090,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// New creates a new server with all dependencies.
func New(cfg Config, appCfg *config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Port == 0 {
		version := cfg.Version
		cfg = DefaultConfig()
		if version != "" {
			cfg.Version = version
		}
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
	}

	b, err := bus.NewBus(appCfg.Bus, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	if appCfg.IsDevelopment() {
		b = bus.NewLoggedBus(b, log)
	}
	s.bus = bus.NewInstrumentedBus(b, s.metrics)

	store, err := snapshot.NewStore(appCfg.Snapshot)
	if err != nil {
		s.bus.Close()
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}
	s.store = store

	s.aggregator = evaluation.NewAggregator(log)
	s.aggregator.SetMetrics(s.metrics)
	if err := s.aggregator.Subscribe(context.Background(), s.bus); err != nil {
		s.closeServices()
		return nil, fmt.Errorf("failed to subscribe aggregator: %w", err)
	}

	runner, err := evaluation.NewRunner(appCfg.Eval, s.bus, s.store, log)
	if err != nil {
		s.closeServices()
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	s.runner = runner
	s.runner.SetMetrics(s.metrics)

	s.evalHandler = evaluation.NewHandler(s.runner, s.store, s.aggregator, appCfg.Eval, log)

	if appCfg.Server.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(appCfg.Server.RateLimit),
			Burst:             appCfg.Server.RateBurst,
			CleanupInterval:   time.Minute,
			StaleAfter:        5 * time.Minute,
			ExemptPaths:       []string{"/healthz", "/metrics"},
		})
	}

	return s, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.done = make(chan struct{})
	go s.pruneLoop(time.Minute, s.done)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr)
	return httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	close(s.done)
	s.closeServices()

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// pruneLoop evicts idle runs from the aggregator until the server stops.
func (s *Server) pruneLoop(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			if n := s.aggregator.Prune(now.Add(-aggregatorRetention)); n > 0 {
				s.log.Debug("Pruned idle runs from aggregator", "runs", n)
			}
		}
	}
}

func (s *Server) closeServices() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.log.WithError(err).Warn("Bus close error")
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.WithError(err).Warn("Snapshot store close error")
		}
	}
}

// Handler returns the full HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.Handle("GET /metrics", s.metrics.Handler())
	s.evalHandler.RegisterRoutes(mux)

	var handler http.Handler = mux
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = metrics.HTTPMiddleware(s.metrics, handler)
	handler = wrapWithLogging(handler, s.log)
	return RequestIDMiddleware(handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"version": s.cfg.Version})
}

// wrapWithLogging logs every request at debug level.
func wrapWithLogging(handler http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create response writer wrapper to capture status
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		handler.ServeHTTP(wrapped, r)

		log.WithContext(r.Context()).Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
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

// Health returns the server health status.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
