// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model holds the client-side view of a remote transcription job.
package model

import (
	"time"
)

// Status is the server-reported lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further server-side change is expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Known reports whether s belongs to the closed status set.
// Unknown values are tolerated and treated as non-terminal.
func (s Status) Known() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// JobFields are the job-level fields returned by the backend.
type JobFields struct {
	ID                string     `json:"job_id"`
	Status            Status     `json:"status"`
	Title             string     `json:"title,omitempty"`
	SourceURL         string     `json:"source_url,omitempty"`
	IsFlagged         bool       `json:"is_flagged"`
	FlagNote          string     `json:"flag_note,omitempty"`
	PauseRequested    bool       `json:"pause_requested"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	ProgressPct       float64    `json:"progress_pct"`
	CompletedSegments int        `json:"completed_segments"`
	TotalSegments     *int       `json:"total_segments,omitempty"`
	Transcript        *string    `json:"transcript,omitempty"`
	Summary           *string    `json:"summary,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Segment is one ordered chunk of a job's timeline.
type Segment struct {
	ID         string  `json:"segment_id"`
	OrderNo    int     `json:"order_no"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Transcript *string `json:"transcript,omitempty"`
	Summary    *string `json:"summary,omitempty"`
}

// Duration returns the segment length, never negative.
func (s Segment) Duration() time.Duration {
	if s.EndMs < s.StartMs {
		return 0
	}
	return time.Duration(s.EndMs-s.StartMs) * time.Millisecond
}
