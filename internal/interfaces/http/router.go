// Package http assembles the TaxFlow REST API.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/internal/interfaces/http/handlers"
	"github.com/turtacn/TaxFlow/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies. Nil
// handlers leave their routes unmounted; a nil AuthMiddleware serves the API
// unauthenticated.
type RouterConfig struct {
	SubmissionHandler *handlers.SubmissionHandler
	HealthHandler     *handlers.HealthHandler
	DeadlineHandler   *handlers.DeadlineHandler

	AuthMiddleware *middleware.AuthMiddleware
	// Authorizer runs after authentication on every API route.
	Authorizer     func(http.Handler) http.Handler
	HTTPRecorder   middleware.HTTPRecorder
	MetricsHandler http.Handler
	MetricsPath    string

	Logger logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig(), cfg.HTTPRecorder))

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.Handler)
		}
		if cfg.Authorizer != nil {
			api.Use(cfg.Authorizer)
		}
		if cfg.SubmissionHandler != nil {
			cfg.SubmissionHandler.Routes(api)
		}
		if cfg.HealthHandler != nil {
			api.Get("/health/filing", cfg.HealthHandler.FilingHealth)
		}
		if cfg.DeadlineHandler != nil {
			api.Get("/deadlines", cfg.DeadlineHandler.Upcoming)
		}
	})

	return r
}
