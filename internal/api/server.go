// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes open sync sessions over a small local HTTP API.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/vidsync/internal/api/middleware"
	"github.com/ManuGH/vidsync/internal/engine"
	"github.com/ManuGH/vidsync/internal/health"
	xglog "github.com/ManuGH/vidsync/internal/log"
)

// Config configures the API.
type Config struct {
	Version string

	// RequestLimit per Window and client IP on mutating routes. Zero
	// disables limiting.
	RequestLimit int
	Window       time.Duration

	// Readiness backs /readyz. Nil leaves the route unregistered.
	Readiness *health.Manager
}

// Server routes HTTP requests to sessions in a Registry.
type Server struct {
	reg    *engine.Registry
	cfg    Config
	logger zerolog.Logger
	router chi.Router
}

// New builds the router.
func New(reg *engine.Registry, cfg Config) *Server {
	s := &Server{
		reg:    reg,
		cfg:    cfg,
		logger: xglog.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the traced root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "vidsync.api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.AccessLog)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Readiness != nil {
		r.Get("/readyz", s.cfg.Readiness.ServeReady)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Get("/events", s.handleEvents)

			r.Group(func(r chi.Router) {
				if s.cfg.RequestLimit > 0 {
					r.Use(middleware.RateLimit(middleware.RateLimitConfig{
						RequestLimit: s.cfg.RequestLimit,
						WindowSize:   s.cfg.Window,
					}))
				}
				r.Put("/", s.handleOpen)
				r.Delete("/", s.handleClose)
				r.Post("/refresh", s.handleRefresh)
				r.Post("/actions/{kind}", s.handleAction)
				r.Delete("/message", s.handleClearMessage)
			})
		})
	})
	return r
}
