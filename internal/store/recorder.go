// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/vidsync/internal/log"
	"github.com/ManuGH/vidsync/internal/model"
)

const appendTimeout = 2 * time.Second

// Recorder appends every merged snapshot to a Store. It satisfies the
// engine's Observer interface. Write failures are logged and never reach
// the engine.
type Recorder struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewRecorder returns a recorder writing to s.
func NewRecorder(s Store) *Recorder {
	return &Recorder{
		store:  s,
		logger: xglog.WithComponent("history"),
		now:    time.Now,
	}
}

// SnapshotMerged records next.
func (r *Recorder) SnapshotMerged(ctx context.Context, prev, next *model.Snapshot) {
	rec, err := NewRecord(prev, next, r.now())
	if err != nil {
		r.logger.Warn().Err(err).Str(xglog.FieldEvent, "history.encode_failed").Msg("snapshot not recorded")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()
	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Warn().Err(err).
			Str(xglog.FieldJobID, rec.JobID).
			Str(xglog.FieldEvent, "history.append_failed").
			Msg("snapshot not recorded")
		return
	}
	if len(rec.Anomalies) > 0 {
		r.logger.Info().
			Str(xglog.FieldJobID, rec.JobID).
			Str(xglog.FieldEvent, "history.anomaly_recorded").
			Strs("anomalies", rec.Anomalies).
			Msg("recorded snapshot with anomalies")
	}
}
