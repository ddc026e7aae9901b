package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/abelmarnk/zero-fun/service/config"
	"github.com/abelmarnk/zero-fun/service/db"
	"github.com/abelmarnk/zero-fun/service/metrics"
	"github.com/abelmarnk/zero-fun/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
)

// InvocationStore defines the journal operations the HTTP handlers need.
// This allows for easy mocking in tests.
type InvocationStore interface {
	GetInvocation(ctx context.Context, signature string) (*db.Invocation, error)
	ListInvocations(ctx context.Context, params db.ListInvocationsParams) ([]*db.Invocation, error)
	CountInvocationsByStatus(ctx context.Context) (map[string]int64, error)
}

// WorkflowStarter starts durable invocation workflows.
// This allows for easy mocking in tests.
type WorkflowStarter interface {
	StartInvocation(ctx context.Context, input temporal.InvokeMethodInput) (client.WorkflowRun, error)
}

// Server represents the HTTP server for the invocation service.
type Server struct {
	addr     string
	cfg      *config.Config
	store    InvocationStore
	workflow WorkflowStarter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The workflow starter enqueues durable invocations; the store serves reads.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store InvocationStore, workflow WorkflowStarter, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		cfg:      cfg,
		store:    store,
		workflow: workflow,
		metrics:  m,
		logger:   logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous invocations wait for finality
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Handler builds the route table. Exposed separately so tests can drive the
// mux without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Invocation routes
	mux.Handle("POST /api/v1/invocations", s.instrument("/api/v1/invocations",
		handleCreateInvocation(s.workflow, s.logger)))
	mux.Handle("GET /api/v1/invocations/{signature}", s.instrument("/api/v1/invocations/{signature}",
		handleGetInvocation(s.store, s.logger)))
	mux.Handle("GET /api/v1/invocations", s.instrument("/api/v1/invocations",
		handleListInvocations(s.store, s.logger)))
	mux.Handle("GET /api/v1/invocations/stats", s.instrument("/api/v1/invocations/stats",
		handleInvocationStats(s.store, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// instrument wraps a handler with HTTP metrics when metrics are configured.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
