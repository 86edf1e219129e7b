// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/vidsync/internal/engine"
	"github.com/ManuGH/vidsync/internal/store"
)

// renderState is the one-line terminal view of a session.
func renderState(st engine.SyncState) string {
	switch st.Phase {
	case engine.PhaseNotStarted:
		return "not started"
	case engine.PhaseLoading:
		return fmt.Sprintf("loading %s...", st.JobID)
	case engine.PhaseFailed:
		if st.Err != nil {
			return fmt.Sprintf("could not load %s: %v", st.JobID, st.Err)
		}
		return fmt.Sprintf("could not load %s", st.JobID)
	}
	if st.Snapshot == nil {
		return string(st.Phase)
	}

	job := st.Snapshot.Job
	parts := []string{fmt.Sprintf("%s %s %.0f%%", st.JobID, job.Status, job.ProgressPct)}
	if job.TotalSegments != nil {
		parts = append(parts, fmt.Sprintf("segments %d/%d", job.CompletedSegments, *job.TotalSegments))
	} else if n := len(st.Snapshot.Segments); n > 0 {
		parts = append(parts, fmt.Sprintf("segments %d", n))
	}
	if job.IsFlagged {
		if job.FlagNote != "" {
			parts = append(parts, fmt.Sprintf("flagged (%s)", job.FlagNote))
		} else {
			parts = append(parts, "flagged")
		}
	}
	if job.ErrorMessage != "" {
		parts = append(parts, "error: "+job.ErrorMessage)
	}
	if st.JobDeleted {
		parts = append(parts, "deleted")
	}
	if st.InFlightAction != engine.ActionNone {
		parts = append(parts, string(st.InFlightAction)+"...")
	}
	if st.LastPollError != "" {
		parts = append(parts, st.LastPollError)
	}
	if st.Message != nil {
		parts = append(parts, st.Message.Text)
	}
	return strings.Join(parts, " | ")
}

// renderRecord is one history line.
func renderRecord(r store.Record) string {
	line := fmt.Sprintf("%s  %-10s %5.1f%%  segments %d",
		r.ObservedAt.UTC().Format(time.RFC3339), r.Status, r.ProgressPct, r.CompletedSegments)
	if len(r.Anomalies) > 0 {
		line += "  anomalies: " + strings.Join(r.Anomalies, ",")
	}
	return line
}
