// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/vidsync/internal/log"
)

const tokenReloadDebounce = 200 * time.Millisecond

// FileCredentials reads a bearer token from a file and reloads it when the
// file changes, so an external login helper can rotate it in place.
type FileCredentials struct {
	path   string
	logger zerolog.Logger

	mu    sync.RWMutex
	token string

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
}

// NewFileCredentials loads the token once. A missing file is an error; an
// empty file yields an empty token (reported as an expired session).
func NewFileCredentials(path string) (*FileCredentials, error) {
	fc := &FileCredentials{
		path:   filepath.Clean(path),
		logger: xglog.WithComponent("credentials"),
	}
	if err := fc.Reload(); err != nil {
		return nil, err
	}
	return fc, nil
}

// Token implements CredentialSource.
func (fc *FileCredentials) Token(context.Context) (string, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.token, nil
}

// Reload re-reads the token file.
func (fc *FileCredentials) Reload() error {
	data, err := os.ReadFile(fc.path)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))

	fc.mu.Lock()
	changed := token != fc.token
	fc.token = token
	fc.mu.Unlock()

	if changed {
		fc.logger.Info().
			Str(xglog.FieldEvent, "credentials.reloaded").
			Str(xglog.FieldPath, fc.path).
			Bool("empty", token == "").
			Msg("token reloaded")
	}
	return nil
}

// Watch reloads the token on file changes until ctx is done. It watches the
// parent directory so atomic replace-by-rename is picked up too.
func (fc *FileCredentials) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(fc.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch token dir: %w", err)
	}

	fc.watchMu.Lock()
	fc.watcher = watcher
	fc.watchMu.Unlock()

	go fc.watchLoop(ctx, watcher)
	return nil
}

func (fc *FileCredentials) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		_ = watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fc.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(tokenReloadDebounce, func() {
				if err := fc.Reload(); err != nil {
					fc.logger.Warn().
						Err(err).
						Str(xglog.FieldEvent, "credentials.reload_failed").
						Msg("token reload failed, keeping previous token")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fc.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "credentials.watcher_error").
				Msg("token watcher error")
		}
	}
}

// Close stops the watcher if one is running.
func (fc *FileCredentials) Close() error {
	fc.watchMu.Lock()
	defer fc.watchMu.Unlock()
	if fc.watcher == nil {
		return nil
	}
	err := fc.watcher.Close()
	fc.watcher = nil
	return err
}
