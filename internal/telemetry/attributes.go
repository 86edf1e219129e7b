// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys.
const (
	JobIDKey       = "job.id"
	JobStatusKey   = "job.status"
	JobProgressKey = "job.progress_pct"
	JobSegmentsKey = "job.segments"

	SyncPhaseKey   = "sync.phase"
	SyncTriggerKey = "sync.trigger"
	SyncOutcomeKey = "sync.outcome"

	PollFailuresKey  = "poll.consecutive_errors"
	PollBackoffMSKey = "poll.backoff_ms"

	ActionKindKey = "action.kind"

	ErrorTypeKey = "error.type"
)

// JobAttributes describes the job a span operates on. Empty values are
// omitted.
func JobAttributes(jobID, status string, progress float64, segments int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if jobID != "" {
		attrs = append(attrs, attribute.String(JobIDKey, jobID))
	}
	if status != "" {
		attrs = append(attrs,
			attribute.String(JobStatusKey, status),
			attribute.Float64(JobProgressKey, progress),
			attribute.Int(JobSegmentsKey, segments),
		)
	}
	return attrs
}

// PollAttributes describes the scheduler state after a refresh.
func PollAttributes(trigger string, failures int, backoff time.Duration) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SyncTriggerKey, trigger),
		attribute.Int(PollFailuresKey, failures),
		attribute.Int64(PollBackoffMSKey, backoff.Milliseconds()),
	}
}

// ErrorAttributes tags a span with a failure class.
func ErrorAttributes(kind string) []attribute.KeyValue {
	if kind == "" {
		kind = "unknown"
	}
	return []attribute.KeyValue{attribute.String(ErrorTypeKey, kind)}
}
