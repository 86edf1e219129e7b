// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ManuGH/vidsync/internal/gateway"
)

// Registry holds one Engine per job id. Engines share the gateway and
// nothing else; each gets its own scheduler.
type Registry struct {
	gw   gateway.Gateway
	opts []Option

	mu       sync.Mutex
	sessions map[string]*Engine
}

// NewRegistry returns an empty registry. opts are applied to every engine
// it creates and must not include WithScheduler.
func NewRegistry(gw gateway.Gateway, opts ...Option) *Registry {
	return &Registry{
		gw:       gw,
		opts:     opts,
		sessions: make(map[string]*Engine),
	}
}

// Open returns the session for jobID, creating and loading it if needed.
// A session whose load failed stays registered in PhaseFailed; Open retries
// the load for it.
func (r *Registry) Open(ctx context.Context, jobID string) (*Engine, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, ErrEmptyJobID
	}

	r.mu.Lock()
	e, ok := r.sessions[jobID]
	if !ok {
		e = New(r.gw, r.opts...)
		r.sessions[jobID] = e
	}
	r.mu.Unlock()

	switch e.State().Phase {
	case PhaseNotStarted, PhaseFailed:
		// A concurrent Open may already be loading this session.
		if err := e.Load(ctx, jobID); err != nil && !errors.Is(err, ErrInvalidState) {
			return e, err
		}
	}
	return e, nil
}

// Get returns an existing session.
func (r *Registry) Get(jobID string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[jobID]
	return e, ok
}

// Close disposes the session for jobID and reports whether it existed.
func (r *Registry) Close(jobID string) bool {
	r.mu.Lock()
	e, ok := r.sessions[jobID]
	delete(r.sessions, jobID)
	r.mu.Unlock()
	if ok {
		e.Close()
	}
	return ok
}

// CloseAll disposes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Engine)
	r.mu.Unlock()
	for _, e := range sessions {
		e.Close()
	}
}

// JobIDs lists open sessions in sorted order.
func (r *Registry) JobIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
