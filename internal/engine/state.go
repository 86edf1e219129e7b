// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"encoding/json"
	"errors"

	"github.com/ManuGH/vidsync/internal/model"
)

// Phase is the outer variant of SyncState.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseLoading    Phase = "loading"
	PhaseReady      Phase = "ready"
	PhaseFailed     Phase = "failed"
)

// ActionKind names a mutating action. The empty kind means none.
type ActionKind string

const (
	ActionNone   ActionKind = ""
	ActionPause  ActionKind = "pause"
	ActionResume ActionKind = "resume"
	ActionFlag   ActionKind = "flag"
	ActionDelete ActionKind = "delete"
)

// ParseActionKind accepts the lower-case action names.
func ParseActionKind(s string) (ActionKind, bool) {
	switch k := ActionKind(s); k {
	case ActionPause, ActionResume, ActionFlag, ActionDelete:
		return k, true
	default:
		return ActionNone, false
	}
}

// Engine contract violations.
var (
	ErrInvalidState   = errors.New("engine: operation not valid in current state")
	ErrActionInFlight = errors.New("engine: another action is in flight")
	ErrSessionClosed  = errors.New("engine: session closed")
	ErrJobDeleted     = errors.New("engine: job was deleted")
	ErrEmptyJobID     = errors.New("engine: job id is empty")
)

// ActionMessage is a transient, dismissible result of an action.
type ActionMessage struct {
	Action  ActionKind `json:"action"`
	Text    string     `json:"text"`
	IsError bool       `json:"is_error"`
}

// SyncState is the value exposed to consumers. Phase selects which fields
// are meaningful: Snapshot and the polling flags only in PhaseReady, Err
// only in PhaseFailed.
type SyncState struct {
	Phase          Phase
	JobID          string
	Snapshot       *model.Snapshot
	IsPolling      bool
	LastPollError  string
	InFlightAction ActionKind
	JobDeleted     bool
	Message        *ActionMessage
	Err            error
}

// Ready reports whether s carries a snapshot.
func (s SyncState) Ready() bool {
	return s.Phase == PhaseReady && s.Snapshot != nil
}

type syncStateJSON struct {
	Phase          Phase           `json:"phase"`
	JobID          string          `json:"job_id,omitempty"`
	Snapshot       *model.Snapshot `json:"snapshot,omitempty"`
	IsPolling      bool            `json:"is_polling"`
	LastPollError  string          `json:"last_poll_error,omitempty"`
	InFlightAction ActionKind      `json:"in_flight_action,omitempty"`
	JobDeleted     bool            `json:"job_deleted"`
	Message        *ActionMessage  `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// MarshalJSON renders Err as a string.
func (s SyncState) MarshalJSON() ([]byte, error) {
	out := syncStateJSON{
		Phase:          s.Phase,
		JobID:          s.JobID,
		Snapshot:       s.Snapshot,
		IsPolling:      s.IsPolling,
		LastPollError:  s.LastPollError,
		InFlightAction: s.InFlightAction,
		JobDeleted:     s.JobDeleted,
		Message:        s.Message,
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return json.Marshal(out)
}
