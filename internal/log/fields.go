// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID     = "job_id"
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOp        = "op"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldStatus   = "status"
	FieldProgress = "progress_pct"

	// Polling fields
	FieldBackoff           = "backoff"
	FieldConsecutiveErrors = "consecutive_errors"

	// Action fields
	FieldAction = "action"

	// Transport fields
	FieldBaseURL    = "base_url"
	FieldHTTPStatus = "http_status"
	FieldPath       = "path"
)
