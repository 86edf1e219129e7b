// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engine keeps a local view of one server-side job in sync by
// polling, and serializes user actions against it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/vidsync/internal/gateway"
	xglog "github.com/ManuGH/vidsync/internal/log"
	"github.com/ManuGH/vidsync/internal/metrics"
	"github.com/ManuGH/vidsync/internal/model"
	"github.com/ManuGH/vidsync/internal/poll"
	"github.com/ManuGH/vidsync/internal/telemetry"
)

// Scheduler is the subset of *poll.Scheduler the engine drives.
type Scheduler interface {
	Start(onTick func())
	Stop()
	RecordSuccess()
	RecordFailure() time.Duration
	Reset()
	ConsecutiveFailures() int
	Interval() time.Duration
	Running() bool
}

// Observer is told about every merged snapshot. prev is nil after the
// initial load. Observers run on the engine's fetch path and must not call
// back into the engine.
type Observer interface {
	SnapshotMerged(ctx context.Context, prev, next *model.Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, prev, next *model.Snapshot)

// SnapshotMerged implements Observer.
func (f ObserverFunc) SnapshotMerged(ctx context.Context, prev, next *model.Snapshot) {
	f(ctx, prev, next)
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the polling policy used for the default scheduler and the
// warning threshold.
func WithPolicy(p poll.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithClock sets the clock of the default scheduler.
func WithClock(c poll.Clock) Option {
	return func(e *Engine) { e.schedOpts = append(e.schedOpts, poll.WithClock(c)) }
}

// WithJitter sets the jitter source of the default scheduler.
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(e *Engine) { e.schedOpts = append(e.schedOpts, poll.WithJitter(fn)) }
}

// WithScheduler replaces the scheduler. A scheduler must not be shared
// between engines.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithLogger sets the base logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers a merge observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithNow replaces the time source used for snapshot timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTracer replaces the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// Engine is the synchronization state machine for one job viewing session.
//
// At most one gateway round-trip (refresh or action) runs at a time; the
// slot channel is that single-flight guard. Results are merged under mu and
// published to subscribers in the order they were merged.
type Engine struct {
	gw        gateway.Gateway
	policy    poll.Policy
	sched     Scheduler
	schedOpts []poll.Option
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	observers []Observer
	sessionID string

	slot chan struct{}

	mu        sync.Mutex
	state     SyncState
	closed    bool
	subs      map[uint64]chan SyncState
	nextSubID uint64
}

// New returns an engine in PhaseNotStarted.
func New(gw gateway.Gateway, opts ...Option) *Engine {
	e := &Engine{
		gw:        gw,
		policy:    poll.DefaultPolicy(),
		tracer:    telemetry.Tracer("vidsync/engine"),
		now:       time.Now,
		sessionID: uuid.NewString(),
		slot:      make(chan struct{}, 1),
		state:     SyncState{Phase: PhaseNotStarted},
		subs:      make(map[uint64]chan SyncState),
		logger:    xglog.WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sched == nil {
		e.sched = poll.NewScheduler(e.policy, e.schedOpts...)
	}
	e.logger = e.logger.With().Str(xglog.FieldSessionID, e.sessionID).Logger()
	metrics.IncActiveSessions()
	return e
}

// SessionID identifies this engine in logs.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Policy returns the polling policy.
func (e *Engine) Policy() poll.Policy {
	return e.policy
}

// State returns the current state.
func (e *Engine) State() SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Load fetches the job, its segments and derived metadata concurrently.
// Valid from PhaseNotStarted, or from PhaseFailed as a retry. Only a failed
// job fetch produces PhaseFailed; missing segments or metadata load as
// empty lists. A non-terminal job starts polling.
func (e *Engine) Load(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return ErrEmptyJobID
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrSessionClosed
	}
	if e.state.Phase != PhaseNotStarted && e.state.Phase != PhaseFailed {
		e.mu.Unlock()
		return fmt.Errorf("load from %s: %w", e.state.Phase, ErrInvalidState)
	}
	e.setLocked(SyncState{Phase: PhaseLoading, JobID: jobID})
	e.mu.Unlock()

	ctx, span := e.tracer.Start(e.tagged(ctx, jobID), "sync.load", trace.WithAttributes(attribute.String(telemetry.JobIDKey, jobID)))
	defer span.End()
	logger := e.jobLogger(jobID)
	logger.Info().Str(xglog.FieldEvent, "sync.load_start").Msg("loading job")

	if err := e.acquire(ctx); err != nil {
		e.failLoad(jobID, err)
		return err
	}

	var (
		job     model.JobFields
		segs    []model.Segment
		people  []model.Person
		segErr  error
		metaErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		job, err = e.gw.FetchJob(gctx, jobID)
		return err
	})
	g.Go(func() error {
		segs, segErr = e.gw.FetchSegments(gctx, jobID)
		return nil
	})
	g.Go(func() error {
		people, metaErr = e.gw.FetchDerivedMetadata(gctx, jobID)
		return nil
	})
	err := g.Wait()

	if err != nil {
		e.release()
		span.RecordError(err)
		span.SetStatus(codes.Error, "job fetch failed")
		span.SetAttributes(telemetry.ErrorAttributes(string(gateway.KindOf(err)))...)
		logger.Warn().Err(err).Str(xglog.FieldEvent, "sync.load_failed").Msg("initial load failed")
		err = fmt.Errorf("load job %s: %w", jobID, err)
		if !e.failLoad(jobID, err) {
			return ErrSessionClosed
		}
		return err
	}
	if segErr != nil {
		logger.Debug().Err(segErr).Str(xglog.FieldEvent, "sync.segments_unavailable").Msg("segments unavailable on load")
	}
	if metaErr != nil {
		logger.Debug().Err(metaErr).Str(xglog.FieldEvent, "sync.metadata_unavailable").Msg("derived metadata unavailable on load")
	}

	if job.ID == "" {
		job.ID = jobID
	}
	snap := model.NewSnapshot(job, segs, people, e.now())
	span.SetAttributes(telemetry.JobAttributes(jobID, string(snap.Status()), snap.Job.ProgressPct, len(snap.Segments))...)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.release()
		logger.Debug().Str(xglog.FieldEvent, "sync.discarded").Msg("load finished after close, result discarded")
		return ErrSessionClosed
	}
	e.setLocked(SyncState{Phase: PhaseReady, JobID: jobID, Snapshot: snap})
	e.mu.Unlock()

	e.notify(ctx, nil, snap)
	e.release()

	logger.Info().
		Str(xglog.FieldEvent, "sync.ready").
		Str(xglog.FieldStatus, string(snap.Status())).
		Float64(xglog.FieldProgress, snap.Job.ProgressPct).
		Msg("job loaded")

	if snap.IsTerminal() {
		metrics.RecordTerminal(string(snap.Status()))
		return nil
	}
	if err := e.StartPolling(); err != nil && !errors.Is(err, ErrSessionClosed) {
		return err
	}
	return nil
}

// failLoad publishes PhaseFailed unless the session was closed meanwhile.
func (e *Engine) failLoad(jobID string, err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.setLocked(SyncState{Phase: PhaseFailed, JobID: jobID, Err: err})
	return true
}

// StartPolling arms the scheduler with a fresh backoff state. It is a no-op
// for a terminal job.
func (e *Engine) StartPolling() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.readyLocked(); err != nil {
		return err
	}
	if e.state.Snapshot.IsTerminal() {
		return nil
	}

	e.sched.Reset()
	e.sched.Start(e.tick)

	next := e.state
	next.IsPolling = true
	next.LastPollError = ""
	e.setLocked(next)
	e.logger.Debug().
		Str(xglog.FieldJobID, e.state.JobID).
		Str(xglog.FieldEvent, "sync.polling_started").
		Dur(xglog.FieldBackoff, e.sched.Interval()).
		Msg("polling started")
	return nil
}

// StopPolling cancels the scheduler. Calling it while not polling is a
// no-op.
func (e *Engine) StopPolling() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	if e.state.Phase != PhaseReady {
		return fmt.Errorf("stop polling from %s: %w", e.state.Phase, ErrInvalidState)
	}
	if e.stopPollingLocked() {
		e.setLocked(e.state)
	}
	return nil
}

// stopPollingLocked stops the scheduler once and reports whether the state
// changed. Caller holds e.mu and publishes.
func (e *Engine) stopPollingLocked() bool {
	if !e.state.IsPolling {
		return false
	}
	e.sched.Stop()
	e.state.IsPolling = false
	e.logger.Debug().
		Str(xglog.FieldJobID, e.state.JobID).
		Str(xglog.FieldEvent, "sync.polling_stopped").
		Msg("polling stopped")
	return true
}

func (e *Engine) tick() {
	_, _ = e.refresh(context.Background(), "tick")
}

// Refresh re-fetches the job and its segments. It returns false without
// error when another fetch or action holds the single-flight slot. A fetch
// failure keeps the session Ready and is returned for the caller's
// information only.
func (e *Engine) Refresh(ctx context.Context) (bool, error) {
	return e.refresh(ctx, "manual")
}

func (e *Engine) refresh(ctx context.Context, trigger string) (bool, error) {
	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		e.mu.Unlock()
		return false, err
	}
	jobID := e.state.JobID
	e.mu.Unlock()

	if !e.tryAcquire() {
		metrics.RecordPoll("skipped")
		e.logger.Debug().
			Str(xglog.FieldJobID, jobID).
			Str(xglog.FieldEvent, "sync.refresh_skipped").
			Str("trigger", trigger).
			Msg("refresh already in flight")
		return false, nil
	}
	defer e.release()

	ctx, span := e.tracer.Start(e.tagged(ctx, jobID), "sync.refresh", trace.WithAttributes(attribute.String(telemetry.JobIDKey, jobID)))
	defer span.End()
	logger := e.jobLogger(jobID)

	var (
		job    model.JobFields
		segs   []model.Segment
		segErr error
		g      errgroup.Group
	)
	g.Go(func() error {
		var err error
		job, err = e.gw.FetchJob(ctx, jobID)
		return err
	})
	g.Go(func() error {
		segs, segErr = e.gw.FetchSegments(ctx, jobID)
		return nil
	})
	err := g.Wait()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		logger.Debug().Str(xglog.FieldEvent, "sync.discarded").Msg("refresh finished after close, result discarded")
		return false, ErrSessionClosed
	}
	prev := e.state.Snapshot

	if err != nil && ctx.Err() != nil {
		// The caller went away; the server did not fail.
		e.mu.Unlock()
		metrics.RecordPoll("cancelled")
		span.RecordError(err)
		logger.Debug().Err(err).
			Str(xglog.FieldEvent, "sync.refresh_cancelled").
			Str("trigger", trigger).
			Msg("refresh cancelled by caller")
		return true, fmt.Errorf("refresh job %s: %w", jobID, err)
	}
	if err != nil {
		backoff := e.sched.RecordFailure()
		failures := e.sched.ConsecutiveFailures()
		metrics.RecordPoll("failure")
		metrics.ObservePollBackoff(backoff)
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		span.SetAttributes(telemetry.PollAttributes(trigger, failures, backoff)...)
		span.SetAttributes(telemetry.ErrorAttributes(string(gateway.KindOf(err)))...)

		ev := logger.Debug()
		if failures >= e.policy.WarnAfter {
			ev = logger.Warn()
			next := e.state
			next.LastPollError = pollWarning(backoff)
			if next.LastPollError != e.state.LastPollError {
				if e.state.LastPollError == "" {
					metrics.IncPollWarning()
				}
				e.setLocked(next)
			}
		}
		e.mu.Unlock()
		ev.Err(err).
			Str(xglog.FieldEvent, "sync.poll_failed").
			Str("trigger", trigger).
			Int(xglog.FieldConsecutiveErrors, failures).
			Dur(xglog.FieldBackoff, backoff).
			Msg("refresh failed")
		return true, fmt.Errorf("refresh job %s: %w", jobID, err)
	}
	e.mu.Unlock()

	if segErr != nil {
		segs = prev.Segments
		logger.Debug().Err(segErr).Str(xglog.FieldEvent, "sync.segments_unavailable").Msg("keeping previous segments")
	}
	people := prev.People
	enteredTerminal := job.Status.IsTerminal() && !prev.IsTerminal()
	if enteredTerminal {
		fetched, metaErr := e.gw.FetchDerivedMetadata(ctx, jobID)
		if metaErr != nil {
			logger.Debug().Err(metaErr).Str(xglog.FieldEvent, "sync.metadata_unavailable").Msg("keeping previous derived metadata")
		} else {
			people = fetched
		}
	}
	if job.ID == "" {
		job.ID = jobID
	}
	next := model.NewSnapshot(job, segs, people, e.now())
	e.reportAnomalies(logger, prev, next)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		logger.Debug().Str(xglog.FieldEvent, "sync.discarded").Msg("refresh finished after close, result discarded")
		return false, ErrSessionClosed
	}
	recovered := e.state.LastPollError != ""
	e.sched.RecordSuccess()
	if next.IsTerminal() {
		e.stopPollingLocked()
	}
	st := e.state
	st.Snapshot = next
	st.LastPollError = ""
	e.setLocked(st)
	e.mu.Unlock()

	metrics.RecordPoll("success")
	span.SetAttributes(telemetry.JobAttributes(jobID, string(next.Status()), next.Job.ProgressPct, len(next.Segments))...)
	span.SetAttributes(telemetry.PollAttributes(trigger, 0, e.sched.Interval())...)
	if recovered {
		logger.Info().Str(xglog.FieldEvent, "sync.poll_recovered").Msg("refresh succeeded after failures")
	}
	if enteredTerminal {
		metrics.RecordTerminal(string(next.Status()))
		logger.Info().
			Str(xglog.FieldEvent, "sync.terminal").
			Str(xglog.FieldStatus, string(next.Status())).
			Msg("job reached terminal status")
	}

	e.notify(ctx, prev, next)
	return true, nil
}

// pollWarning is the user-facing text shown once failures pass the
// threshold. Seconds are rounded up so a 2.4s backoff reads "3s".
func pollWarning(backoff time.Duration) string {
	secs := int(math.Ceil(backoff.Seconds()))
	return fmt.Sprintf("Having trouble reaching the server. Retrying in %ds.", secs)
}

func (e *Engine) reportAnomalies(logger zerolog.Logger, prev, next *model.Snapshot) {
	for _, a := range model.Compare(prev, next) {
		metrics.RecordAnomaly(string(a.Kind))
		logger.Warn().
			Str(xglog.FieldEvent, "sync.anomaly").
			Str("kind", string(a.Kind)).
			Str("detail", a.Detail).
			Msg("unexpected backend data")
	}
}

// ClearMessage dismisses the transient action message.
func (e *Engine) ClearMessage() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state.Message == nil {
		return
	}
	next := e.state
	next.Message = nil
	e.setLocked(next)
}

// Subscribe returns a channel that receives the current state immediately
// and every later state. A slow reader only sees the latest value. The
// channel is closed by the returned cancel func or by Close.
func (e *Engine) Subscribe() (<-chan SyncState, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan SyncState, 1)
	if e.closed {
		ch <- e.state
		close(ch)
		return ch, func() {}
	}
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = ch
	ch <- e.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
		})
	}
}

// Close disposes the session: polling stops, subscribers are closed and any
// fetch still in flight has its result discarded. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.stopPollingLocked()
	e.closed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	metrics.DecActiveSessions()
	e.logger.Debug().
		Str(xglog.FieldJobID, e.state.JobID).
		Str(xglog.FieldEvent, "sync.closed").
		Msg("session closed")
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// readyLocked checks the preconditions shared by polling, refresh and
// actions.
func (e *Engine) readyLocked() error {
	switch {
	case e.closed:
		return ErrSessionClosed
	case e.state.Phase != PhaseReady:
		return fmt.Errorf("%s: %w", e.state.Phase, ErrInvalidState)
	case e.state.JobDeleted:
		return ErrJobDeleted
	}
	return nil
}

// setLocked replaces the state and publishes it. Caller holds e.mu.
func (e *Engine) setLocked(next SyncState) {
	prev := e.state
	e.state = next
	if prev.Phase != next.Phase {
		metrics.RecordStateTransition(string(prev.Phase), string(next.Phase))
		e.logger.Debug().
			Str(xglog.FieldJobID, next.JobID).
			Str(xglog.FieldEvent, "sync.transition").
			Str(xglog.FieldOldState, string(prev.Phase)).
			Str(xglog.FieldNewState, string(next.Phase)).
			Msg("state transition")
	}
	for _, ch := range e.subs {
		publish(ch, next)
	}
}

// publish delivers v, replacing an unread older value.
func publish(ch chan SyncState, v SyncState) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func (e *Engine) notify(ctx context.Context, prev, next *model.Snapshot) {
	for _, o := range e.observers {
		o.SnapshotMerged(ctx, prev, next)
	}
}

func (e *Engine) tryAcquire() bool {
	select {
	case e.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	<-e.slot
}

// tagged carries the job and session ids to gateway logs.
func (e *Engine) tagged(ctx context.Context, jobID string) context.Context {
	return xglog.ContextWithSessionID(xglog.ContextWithJobID(ctx, jobID), e.sessionID)
}

func (e *Engine) jobLogger(jobID string) zerolog.Logger {
	return e.logger.With().Str(xglog.FieldJobID, jobID).Logger()
}
