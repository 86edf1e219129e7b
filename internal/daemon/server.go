// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/vidsync/internal/api"
	xglog "github.com/ManuGH/vidsync/internal/log"
)

const shutdownTimeout = 10 * time.Second

// Serve listens on the configured API address and runs until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.cfg.API.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.API.Listen, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener runs the API on ln together with the token watcher and a
// SIGHUP token reload. Sessions are closed before the server drains so
// event streams end.
func (a *App) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler: api.New(a.reg, api.Config{
			Version:      a.cfg.Version,
			RequestLimit: a.cfg.API.RequestLimit,
			Window:       a.cfg.API.Window,
			Readiness:    a.Readiness(),
		}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := a.WatchCredentials(gctx); err != nil {
		a.logger.Warn().Err(err).Str(xglog.FieldEvent, "credentials.watch_failed").Msg("token file watcher not started")
	}

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := a.ReloadCredentials(); err != nil {
					a.logger.Warn().Err(err).Str(xglog.FieldEvent, "credentials.reload_failed").Msg("token reload on SIGHUP failed")
				}
			}
		}
	})

	g.Go(func() error {
		a.logger.Info().
			Str(xglog.FieldEvent, "api.listening").
			Str("addr", ln.Addr().String()).
			Msg("API listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.reg.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown API: %w", err)
		}
		a.logger.Info().Str(xglog.FieldEvent, "api.stopped").Msg("API stopped")
		return nil
	})

	return g.Wait()
}
