// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the newest max records per job.
type MemoryStore struct {
	mu   sync.RWMutex
	max  int
	jobs map[string][]Record
}

// NewMemoryStore returns an empty store. max <= 0 means unbounded.
func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{max: max, jobs: make(map[string][]Record)}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := append(s.jobs[rec.JobID], rec)
	if s.max > 0 && len(recs) > s.max {
		recs = recs[len(recs)-s.max:]
	}
	s.jobs[rec.JobID] = recs
	return nil
}

// History implements Store.
func (s *MemoryStore) History(_ context.Context, jobID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.jobs[jobID]
	n := len(recs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := len(recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
