// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires configuration into the gateway, history store,
// tracing and session registry, and owns their lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/vidsync/internal/config"
	"github.com/ManuGH/vidsync/internal/engine"
	"github.com/ManuGH/vidsync/internal/gateway"
	"github.com/ManuGH/vidsync/internal/health"
	xglog "github.com/ManuGH/vidsync/internal/log"
	"github.com/ManuGH/vidsync/internal/store"
	"github.com/ManuGH/vidsync/internal/telemetry"
)

// ServiceName tags logs and traces.
const ServiceName = "vidsync"

// App holds the long-lived collaborators shared by every session.
type App struct {
	cfg    config.AppConfig
	logger zerolog.Logger

	gw    gateway.Gateway
	creds *gateway.FileCredentials
	store store.Store
	tp    *telemetry.Provider
	reg   *engine.Registry

	engineOpts []engine.Option
}

// Option overrides part of the wiring.
type Option func(*App)

// WithGateway skips building the HTTP gateway.
func WithGateway(gw gateway.Gateway) Option {
	return func(a *App) { a.gw = gw }
}

// WithStore skips opening the configured store.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithEngineOptions appends options applied to every engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(a *App) { a.engineOpts = append(a.engineOpts, opts...) }
}

// New builds the App. On error everything opened so far is released.
func New(ctx context.Context, cfg config.AppConfig, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg, logger: xglog.WithComponent("daemon")}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.tp, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if a.gw == nil {
		if a.gw, err = a.buildGateway(); err != nil {
			return nil, err
		}
	}

	if a.store == nil {
		if a.store, err = store.Open(cfg.Store.Backend, cfg.Store.Target()); err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
		}
	}

	a.reg = engine.NewRegistry(a.gw, a.EngineOptions()...)

	a.logger.Info().
		Str(xglog.FieldEvent, "daemon.ready").
		Str("store", cfg.Store.Backend).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("runtime wired")
	return a, nil
}

func (a *App) buildGateway() (gateway.Gateway, error) {
	g := a.cfg.Gateway
	var creds gateway.CredentialSource
	if g.TokenFile != "" {
		fc, err := gateway.NewFileCredentials(g.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("load token file: %w", err)
		}
		a.creds = fc
		creds = fc
	} else {
		if g.Token == "" {
			a.logger.Warn().
				Str(xglog.FieldEvent, "daemon.no_token").
				Msg("no token configured, backend calls will report an expired session")
		}
		creds = gateway.StaticCredentials(g.Token)
	}

	gw, err := gateway.NewHTTPClient(gateway.Options{
		BaseURL:          g.BaseURL,
		Credentials:      creds,
		Timeout:          g.Timeout,
		RateLimit:        rate.Limit(g.RateLimit),
		Burst:            g.Burst,
		BreakerThreshold: g.BreakerThreshold,
		BreakerReset:     g.BreakerReset,
	})
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}
	return gw, nil
}

// Readiness builds the /readyz checks: the history store, the token file
// when one is configured and the gateway circuit breaker.
func (a *App) Readiness() *health.Manager {
	m := health.NewManager()
	m.RegisterChecker(health.NewStoreChecker(a.store))
	if a.cfg.Gateway.TokenFile != "" {
		m.RegisterChecker(health.NewFileChecker("token_file", a.cfg.Gateway.TokenFile))
	}
	if src, ok := a.gw.(health.BreakerSource); ok {
		m.RegisterChecker(health.NewBreakerChecker("gateway", src))
	}
	return m
}

// EngineOptions returns the options every engine is built with: the
// configured policy, the history recorder and any WithEngineOptions.
func (a *App) EngineOptions(extra ...engine.Option) []engine.Option {
	opts := []engine.Option{
		engine.WithPolicy(a.cfg.Policy()),
		engine.WithObserver(store.NewRecorder(a.store)),
	}
	opts = append(opts, a.engineOpts...)
	return append(opts, extra...)
}

// OpenSession builds a standalone engine for jobID and loads it. The caller
// closes it.
func (a *App) OpenSession(ctx context.Context, jobID string, extra ...engine.Option) (*engine.Engine, error) {
	e := engine.New(a.gw, a.EngineOptions(extra...)...)
	if err := e.Load(ctx, jobID); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// WatchCredentials starts the token file watcher when one is configured.
func (a *App) WatchCredentials(ctx context.Context) error {
	if a.creds == nil {
		return nil
	}
	return a.creds.Watch(ctx)
}

// ReloadCredentials re-reads the token file, if any.
func (a *App) ReloadCredentials() error {
	if a.creds == nil {
		return nil
	}
	return a.creds.Reload()
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.AppConfig { return a.cfg }

// Registry returns the shared session registry.
func (a *App) Registry() *engine.Registry { return a.reg }

// Store returns the history store.
func (a *App) Store() store.Store { return a.store }

// Gateway returns the job gateway.
func (a *App) Gateway() gateway.Gateway { return a.gw }

// Close disposes sessions, then releases the watcher, store and tracer.
func (a *App) Close(ctx context.Context) error {
	if a.reg != nil {
		a.reg.CloseAll()
	}
	var errs []error
	if a.creds != nil {
		errs = append(errs, a.creds.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.tp != nil {
		errs = append(errs, a.tp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
