// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ManuGH/vidsync/internal/gateway"
	xglog "github.com/ManuGH/vidsync/internal/log"
	"github.com/ManuGH/vidsync/internal/metrics"
	"github.com/ManuGH/vidsync/internal/model"
	"github.com/ManuGH/vidsync/internal/telemetry"
)

var titleCase = cases.Title(language.English)

// Pause asks the backend to pause the job.
func (e *Engine) Pause(ctx context.Context) error {
	return e.runAction(ctx, ActionPause, "Job paused", func(ctx context.Context, jobID string) (model.JobFields, error) {
		return e.gw.Pause(ctx, jobID)
	})
}

// Resume asks the backend to resume a paused job.
func (e *Engine) Resume(ctx context.Context) error {
	return e.runAction(ctx, ActionResume, "Job resumed", func(ctx context.Context, jobID string) (model.JobFields, error) {
		return e.gw.Resume(ctx, jobID)
	})
}

// SetFlag flags or unflags the job with an optional note.
func (e *Engine) SetFlag(ctx context.Context, flagged bool, note string) error {
	success := "Flag removed"
	if flagged {
		success = "Job flagged"
	}
	return e.runAction(ctx, ActionFlag, success, func(ctx context.Context, jobID string) (model.JobFields, error) {
		return e.gw.SetFlag(ctx, jobID, flagged, note)
	})
}

// Delete deletes the job. On success the session stops polling for good and
// every later refresh or action returns ErrJobDeleted.
func (e *Engine) Delete(ctx context.Context) error {
	return e.runAction(ctx, ActionDelete, "Job deleted", func(ctx context.Context, jobID string) (model.JobFields, error) {
		return e.gw.Delete(ctx, jobID)
	})
}

// Do runs the action named by kind. Flag sets the flag without a note.
func (e *Engine) Do(ctx context.Context, kind ActionKind) error {
	switch kind {
	case ActionPause:
		return e.Pause(ctx)
	case ActionResume:
		return e.Resume(ctx)
	case ActionFlag:
		return e.SetFlag(ctx, true, "")
	case ActionDelete:
		return e.Delete(ctx)
	default:
		return fmt.Errorf("unknown action %q: %w", kind, ErrInvalidState)
	}
}

type mutation func(ctx context.Context, jobID string) (model.JobFields, error)

// runAction claims the action slot, waits for any in-flight refresh, calls
// the gateway and merges the returned fields like a poll result.
func (e *Engine) runAction(ctx context.Context, kind ActionKind, success string, call mutation) error {
	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.state.InFlightAction != ActionNone {
		inFlight := e.state.InFlightAction
		e.mu.Unlock()
		metrics.RecordAction(string(kind), "rejected")
		e.logger.Debug().
			Str(xglog.FieldEvent, "action.rejected").
			Str(xglog.FieldAction, string(kind)).
			Str("in_flight", string(inFlight)).
			Msg("action rejected, another is in flight")
		return ErrActionInFlight
	}
	jobID := e.state.JobID
	next := e.state
	next.InFlightAction = kind
	next.Message = nil
	e.setLocked(next)
	e.mu.Unlock()

	logger := e.jobLogger(jobID).With().Str(xglog.FieldAction, string(kind)).Logger()

	if err := e.acquire(ctx); err != nil {
		e.mu.Lock()
		if !e.closed {
			st := e.state
			st.InFlightAction = ActionNone
			e.setLocked(st)
		}
		e.mu.Unlock()
		metrics.RecordAction(string(kind), "cancelled")
		return err
	}
	// The session may have been closed while waiting for the slot.
	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		if !e.closed {
			st := e.state
			st.InFlightAction = ActionNone
			e.setLocked(st)
		}
		e.mu.Unlock()
		e.release()
		metrics.RecordAction(string(kind), "cancelled")
		logger.Debug().Err(err).Str(xglog.FieldEvent, "action.dropped").Msg("session no longer ready, action not sent")
		return err
	}
	e.mu.Unlock()
	defer e.release()

	ctx, span := e.tracer.Start(e.tagged(ctx, jobID), "sync.action", trace.WithAttributes(
		attribute.String(telemetry.JobIDKey, jobID),
		attribute.String(telemetry.ActionKindKey, string(kind)),
	))
	defer span.End()
	logger.Debug().Str(xglog.FieldEvent, "action.start").Msg("submitting action")

	fields, err := call(ctx, jobID)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		logger.Debug().Str(xglog.FieldEvent, "sync.discarded").Msg("action finished after close, result discarded")
		return ErrSessionClosed
	}

	if err != nil {
		st := e.state
		st.InFlightAction = ActionNone
		st.Message = &ActionMessage{Action: kind, Text: failureText(kind, err), IsError: true}
		e.setLocked(st)
		e.mu.Unlock()

		metrics.RecordAction(string(kind), "failure")
		span.RecordError(err)
		span.SetStatus(codes.Error, "action failed")
		span.SetAttributes(telemetry.ErrorAttributes(string(gateway.KindOf(err)))...)
		logger.Warn().Err(err).
			Str(xglog.FieldEvent, "action.failed").
			Int(xglog.FieldHTTPStatus, gateway.StatusOf(err)).
			Msg("action failed")
		return fmt.Errorf("%s job %s: %w", kind, jobID, err)
	}

	prev := e.state.Snapshot
	merged := prev
	// An empty body carries no job fields; keep what we have.
	if fields.ID != "" {
		merged = prev.WithJob(fields, e.now())
	}
	enteredTerminal := merged.IsTerminal() && !prev.IsTerminal()
	if kind == ActionDelete || merged.IsTerminal() {
		e.stopPollingLocked()
	}
	st := e.state
	st.Snapshot = merged
	st.InFlightAction = ActionNone
	st.Message = &ActionMessage{Action: kind, Text: success}
	if kind == ActionDelete {
		st.JobDeleted = true
	}
	e.setLocked(st)
	e.mu.Unlock()

	metrics.RecordAction(string(kind), "success")
	if enteredTerminal {
		metrics.RecordTerminal(string(merged.Status()))
	}
	logger.Info().
		Str(xglog.FieldEvent, "action.ok").
		Str(xglog.FieldStatus, string(merged.Status())).
		Msg(success)

	if merged != prev {
		e.reportAnomalies(logger, prev, merged)
		e.notify(ctx, prev, merged)
	}
	return nil
}

// failureText turns a gateway failure into a short message for the user.
// Conflicts are phrased as a state problem, never as a status code.
func failureText(kind ActionKind, err error) string {
	verb := string(kind)
	if errors.Is(err, gateway.ErrConflict) {
		return fmt.Sprintf("Cannot %s job in its current state", verb)
	}
	return fmt.Sprintf("%s failed: %s", titleCase.String(verb), failureReason(err))
}

func failureReason(err error) string {
	var ge *gateway.Error
	if !errors.As(err, &ge) {
		return "unexpected error"
	}
	switch ge.Kind {
	case gateway.KindValidation:
		if ge.Body != "" {
			return ge.Body
		}
		return "invalid input"
	case gateway.KindSessionExpired:
		return "your session has expired, sign in again"
	case gateway.KindAuth:
		return "you are not allowed to do this"
	case gateway.KindNetwork:
		if errors.Is(err, gateway.ErrTimeout) {
			return "the server took too long to respond"
		}
		return "the server could not be reached"
	}
	if errors.Is(err, gateway.ErrNotFound) {
		return "job not found"
	}
	if ge.Body != "" {
		return ge.Body
	}
	return "the server returned an error"
}
