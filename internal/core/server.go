// Package core is the HTTP chassis: a chi router with the shared middleware
// chain, JSON response helpers and the health endpoint. Domain handlers are
// mounted through route registrars supplied by the entry point.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"marketingapi/internal/config"
)

// RouteRegistrar mounts routes on a sub-router.
type RouteRegistrar func(r chi.Router)

// Server holds the router and its cross-cutting dependencies.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	HealthChecks []HealthCheck

	// RateLimitCounter backs RateLimitByIP when set. httprate reconfigures it
	// per middleware, so share one only between routes with equal limits.
	RateLimitCounter httprate.LimitCounter

	// V1RouteRegistrars are mounted under /v1; WebhookRouteRegistrars under
	// /webhooks. Webhook routes skip CORS.
	V1RouteRegistrars      []RouteRegistrar
	WebhookRouteRegistrars []RouteRegistrar

	// Closers are released by Shutdown in order.
	Closers []io.Closer

	router *chi.Mux
}

// NewServer creates a Server. Routes are mounted separately with MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
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

// Shutdown releases the registered closers and joins their errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var errs []error
	for _, c := range s.Closers {
		if err := c.Close(); err != nil {
			s.Logger.ErrorContext(ctx, "error closing resource", "error", err)
			errs = append(errs, err)
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return errors.Join(errs...)
}
