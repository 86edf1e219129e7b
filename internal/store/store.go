// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists the history of merged job snapshots.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/vidsync/internal/model"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSqlite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// DefaultMaxRecords bounds per-job history in the memory and redis
// backends.
const DefaultMaxRecords = 1000

var ErrUnknownBackend = errors.New("store: unknown backend")

// Record is one merged snapshot.
type Record struct {
	JobID             string          `json:"job_id"`
	ObservedAt        time.Time       `json:"observed_at"`
	Status            model.Status    `json:"status"`
	ProgressPct       float64         `json:"progress_pct"`
	CompletedSegments int             `json:"completed_segments"`
	Anomalies         []string        `json:"anomalies,omitempty"`
	Snapshot          json.RawMessage `json:"snapshot"`
}

// Store appends and lists snapshot records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// History returns up to limit records for jobID, newest first. A
	// non-positive limit returns everything.
	History(ctx context.Context, jobID string, limit int) ([]Record, error)
	Close() error
}

// NewRecord captures next, tagging it with the anomalies seen since prev.
func NewRecord(prev, next *model.Snapshot, at time.Time) (Record, error) {
	if next == nil {
		return Record{}, errors.New("store: nil snapshot")
	}
	data, err := json.Marshal(next)
	if err != nil {
		return Record{}, fmt.Errorf("store: encode snapshot: %w", err)
	}
	rec := Record{
		JobID:             next.JobID(),
		ObservedAt:        at.UTC(),
		Status:            next.Status(),
		ProgressPct:       next.Job.ProgressPct,
		CompletedSegments: next.Job.CompletedSegments,
		Snapshot:          data,
	}
	for _, a := range model.Compare(prev, next) {
		rec.Anomalies = append(rec.Anomalies, string(a.Kind))
	}
	return rec, nil
}

// Open creates a store for backend. target is a file path for sqlite, a
// directory for badger and host:port for redis; memory ignores it.
func Open(backend, target string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(DefaultMaxRecords), nil
	case BackendSqlite:
		if target == "" {
			return nil, fmt.Errorf("store: sqlite backend needs a path")
		}
		return OpenSqliteStore(target)
	case BackendBadger:
		if target == "" {
			return nil, fmt.Errorf("store: badger backend needs a directory")
		}
		return OpenBadgerStore(target)
	case BackendRedis:
		if target == "" {
			return nil, fmt.Errorf("store: redis backend needs an address")
		}
		return OpenRedisStore(RedisConfig{Addr: target, MaxRecords: DefaultMaxRecords})
	default:
		return nil, fmt.Errorf("%w: %s (supported: memory, sqlite, badger, redis)", ErrUnknownBackend, backend)
	}
}
