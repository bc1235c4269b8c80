// Package server is the HTTP surface of the bot: health, on-demand
// evaluation, the alert journal and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/server/handler"
	"github.com/alanyoungcy/solbot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers. Alerts,
// Metrics and EvaluateLimiter are optional.
type Handlers struct {
	Health   *handler.HealthHandler
	Evaluate *handler.EvaluateHandler
	Alerts   *handler.AlertHandler
	Metrics  http.Handler

	// EvaluateLimiter throttles POST /api/evaluate.
	EvaluateLimiter domain.RateLimiter

	// Observer receives per-request metrics.
	Observer middleware.RequestObserver
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. Health and metrics
// are public; the evaluation and journal endpoints sit behind the API key.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	auth := middleware.Auth(cfg.APIKey)

	var evaluate http.Handler = http.HandlerFunc(handlers.Evaluate.Evaluate)
	if handlers.EvaluateLimiter != nil {
		evaluate = middleware.RateLimit(handlers.EvaluateLimiter, time.Second)(evaluate)
	}
	mux.Handle("POST /api/evaluate", auth(evaluate))

	if handlers.Alerts != nil {
		mux.Handle("GET /api/alerts", auth(http.HandlerFunc(handlers.Alerts.ListRecent)))
	}

	var h http.Handler = mux
	h = middleware.Logging(logger, handlers.Observer)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
