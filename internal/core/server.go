// Package core provides the HTTP chassis for tiergate: a chi router with the
// cross-cutting middleware (panic recovery, request IDs, request logging and
// latency metrics) and the health endpoint. Domain handlers register
// themselves through RouteRegistrars.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tiergate/internal/config"
)

// MetricsCollector records per-request latency. RecordRequest runs before the
// response is flushed and must not block.
type MetricsCollector interface {
	RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration)
}

// Server holds the router and the dependencies of its middleware.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics MetricsCollector

	// HealthProbes are run concurrently by GET /health.
	HealthProbes []HealthProbe

	// RouteRegistrars mount domain handlers at the router root.
	RouteRegistrars []func(chi.Router)

	// Closers run in order on Shutdown.
	Closers []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer creates a Server. Routes are mounted by MountRoutes once the
// registrars and probes are set.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs every closer and returns their joined errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for _, closeFn := range s.Closers {
		if err := closeFn(ctx); err != nil {
			s.Logger.Error("error during shutdown", "error", err)
			errs = append(errs, err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
