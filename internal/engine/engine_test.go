// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/vidsync/internal/gateway"
	"github.com/ManuGH/vidsync/internal/gateway/gatewaytest"
	"github.com/ManuGH/vidsync/internal/model"
	"github.com/ManuGH/vidsync/internal/poll"
	"github.com/ManuGH/vidsync/internal/poll/polltest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func noJitter(time.Duration) time.Duration { return 0 }

// spyScheduler counts Start and Stop calls on a real scheduler.
type spyScheduler struct {
	*poll.Scheduler
	starts atomic.Int32
	stops  atomic.Int32
}

func (s *spyScheduler) Start(onTick func()) {
	s.starts.Add(1)
	s.Scheduler.Start(onTick)
}

func (s *spyScheduler) Stop() {
	s.stops.Add(1)
	s.Scheduler.Stop()
}

type harness struct {
	t     *testing.T
	gw    *gatewaytest.Fake
	clock *polltest.ManualClock
	sched *spyScheduler
	eng   *Engine
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	gw := gatewaytest.New()
	clock := polltest.NewManualClock()
	policy := poll.DefaultPolicy()
	sched := &spyScheduler{Scheduler: poll.NewScheduler(policy, poll.WithClock(clock), poll.WithJitter(noJitter))}
	base := []Option{WithPolicy(policy), WithScheduler(sched), WithLogger(zerolog.Nop())}
	eng := New(gw, append(base, opts...)...)
	t.Cleanup(eng.Close)
	return &harness{t: t, gw: gw, clock: clock, sched: sched, eng: eng}
}

func (h *harness) load(fields model.JobFields) {
	h.t.Helper()
	h.gw.Job(fields, nil)
	require.NoError(h.t, h.eng.Load(context.Background(), fields.ID))
}

func (h *harness) tick() {
	h.t.Helper()
	require.True(h.t, h.clock.Advance(), "no timer armed")
}

func (h *harness) nextDelay() time.Duration {
	h.t.Helper()
	pending := h.clock.Pending()
	require.Len(h.t, pending, 1)
	return pending[0].Delay
}

func processing(id string, pct float64) model.JobFields {
	return model.JobFields{ID: id, Status: model.StatusProcessing, ProgressPct: pct}
}

var errUnreachable = gateway.Classify(gateway.OpFetchJob, errors.New("connection refused"), 0, "")

func TestLoad_HappyPathThenTerminal(t *testing.T) {
	h := newHarness(t)
	h.load(processing("job-1", 10))

	st := h.eng.State()
	require.Equal(t, PhaseReady, st.Phase)
	assert.True(t, st.IsPolling)
	assert.Empty(t, st.LastPollError)
	assert.Equal(t, 10.0, st.Snapshot.Job.ProgressPct)
	assert.Equal(t, 2*time.Second, h.nextDelay())

	h.gw.Job(model.JobFields{}, errUnreachable)
	h.tick()
	st = h.eng.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.True(t, st.IsPolling)
	assert.Empty(t, st.LastPollError)

	h.gw.Job(model.JobFields{ID: "job-1", Status: model.StatusCompleted, ProgressPct: 100}, nil)
	h.tick()
	st = h.eng.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.False(t, st.IsPolling)
	assert.Equal(t, model.StatusCompleted, st.Snapshot.Status())
	assert.Equal(t, int32(1), h.sched.stops.Load())
	assert.Empty(t, h.clock.Pending())
	assert.False(t, h.sched.Running())
}

func TestLoad_FailureThenRetry(t *testing.T) {
	h := newHarness(t)
	h.gw.Job(model.JobFields{}, errUnreachable)

	err := h.eng.Load(context.Background(), "job-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrNetwork)

	st := h.eng.State()
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.ErrorIs(t, st.Err, gateway.ErrNetwork)
	assert.Empty(t, h.clock.Pending())
	assert.Zero(t, h.sched.starts.Load())

	h.load(processing("job-1", 5))
	assert.Equal(t, PhaseReady, h.eng.State().Phase)
	assert.True(t, h.eng.State().IsPolling)
}

func TestLoad_Preconditions(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.eng.Load(context.Background(), "  "), ErrEmptyJobID)

	h.load(processing("job-1", 0))
	assert.ErrorIs(t, h.eng.Load(context.Background(), "job-1"), ErrInvalidState)

	h.eng.Close()
	assert.ErrorIs(t, h.eng.Load(context.Background(), "job-1"), ErrSessionClosed)
}

func TestLoad_TerminalJobDoesNotPoll(t *testing.T) {
	h := newHarness(t)
	h.load(model.JobFields{ID: "job-1", Status: model.StatusFailed, ErrorMessage: "bad codec"})

	st := h.eng.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.False(t, st.IsPolling)
	assert.Zero(t, h.sched.starts.Load())

	require.NoError(t, h.eng.StartPolling())
	assert.False(t, h.eng.State().IsPolling)
	assert.Empty(t, h.clock.Pending())
}

func TestLoad_ToleratesMissingSegmentsAndMetadata(t *testing.T) {
	h := newHarness(t)
	h.gw.Segments(nil, gateway.Classify(gateway.OpFetchSegments, nil, http.StatusInternalServerError, ""))
	h.gw.OnFetchPeople(func(context.Context, string) ([]model.Person, error) {
		return nil, errUnreachable
	})
	h.load(processing("job-1", 0))

	st := h.eng.State()
	require.Equal(t, PhaseReady, st.Phase)
	assert.NotNil(t, st.Snapshot.Segments)
	assert.Empty(t, st.Snapshot.Segments)
	assert.Empty(t, st.Snapshot.People)
}

func TestLoad_FillsMissingJobID(t *testing.T) {
	h := newHarness(t)
	h.gw.Job(model.JobFields{Status: model.StatusQueued}, nil)
	require.NoError(t, h.eng.Load(context.Background(), "job-9"))
	assert.Equal(t, "job-9", h.eng.State().Snapshot.JobID())
}

func TestRefresh_BackoffSequenceAndWarningThreshold(t *testing.T) {
	h := newHarness(t)
	h.load(processing("job-1", 10))
	h.gw.Job(model.JobFields{}, errUnreachable)

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, d := range want {
		h.tick()
		assert.Empty(t, h.eng.State().LastPollError, "failure %d", i+1)
		assert.Equal(t, d, h.nextDelay(), "failure %d", i+1)
	}

	h.tick()
	st := h.eng.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Equal(t, "Having trouble reaching the server. Retrying in 30s.", st.LastPollError)
	assert.Equal(t, 30*time.Second, h.nextDelay())

	h.tick()
	assert.Equal(t, 30*time.Second, h.nextDelay())
	assert.NotEmpty(t, h.eng.State().LastPollError)

	h.gw.Job(processing("job-1", 20), nil)
	h.tick()
	st = h.eng.State()
	assert.Empty(t, st.LastPollError)
	assert.Equal(t, 20.0, st.Snapshot.Job.ProgressPct)
	assert.Equal(t, 2*time.Second, h.nextDelay())
}

func TestRefresh_BackoffResetsAfterSuccess(t *testing.T) {
	h := newHarness(t)
	h.load(processing("job-1", 10))

	h.gw.Job(model.JobFields{}, errUnreachable)
	for i := 0; i < 3; i++ {
		h.tick()
	}
	assert.Equal(t, 8*time.Second, h.nextDelay())

	h.gw.Job(processing("job-1", 11), nil)
	h.tick()
	assert.Equal(t, 2*time.Second, h.nextDelay())

	h.gw.Job(model.JobFields{}, errUnreachable)
	h.tick()
	assert.Equal(t, 2*time.Second, h.nextDelay())
	assert.Equal(t, 1, h.sched.ConsecutiveFailures())
}

func TestRefresh_ManualFailureReturnsError(t *testing.T) {
	h := newHarness(t)
	h.load(processing("job-1", 10))
	h.gw.Job(model.JobFields{}, errUnreachable)

	ran, err := h.eng.Refresh(context.Background())
	assert.True(t, ran)
	assert.ErrorIs(t, err, gateway.ErrNetwork)
	assert.Equal(t, PhaseReady, h.eng.State().Phase)
}

func TestRefresh_CallerCancellationIsNotAFailure(t *testing.T) {
	h := newHarness(t)
	h.load(processing("job-1", 10))

	ctx, cancel := context.WithCancel(context.Background())
	h.gw.OnFetchJob(func(ctx context.Context, _ string) (model.JobFields, error) {
		cancel()
		return model.JobFields{}, gateway.Classify(gateway.OpFetchJob, ctx.Err(), 0, "")
	})

	for i := 0; i < 6; i++ {
		ran, err := h.eng.Refresh(ctx)
		assert.True(t, ran)
		assert.ErrorIs(t, err, gateway.ErrNetwork)
	}
	assert.Zero(t, h.sched.ConsecutiveFailures())
	assert.Empty(t, h.eng.State().LastPollError)
	assert.Equal(t, h.eng.Policy().BaseInterval, h.sched.Interval())
}

func TestRefresh_SingleFlight(t *testing.T) {
	h := newHarness(t)
	h.load(processing("job-1", 10))
	require.Equal(t, 1, h.gw.Calls(gatewaytest.OpFetchJob))

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	h.gw.OnFetchJob(func(_ context.Context, id string) (model.JobFields, error) {
		started <- struct{}{}
		<-release
		return processing(id, 20), nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.clock.Advance()
	}()
	<-started

	ran, err := h.eng.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 2, h.gw.Calls(gatewaytest.OpFetchJob))

	close(release)
	<-done
	assert.Equal(t, 2, h.gw.Calls(gatewaytest.OpFetchJob))
	assert.Equal(t, 20.0, h.eng.State().Snapshot.Job.ProgressPct)

	h.gw.Job(processing("job-1", 30), nil)
	ran, err = h.eng.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 30.0, h.eng.State().Snapshot.Job.ProgressPct)
}

func TestRefresh_MergesJobAndSegmentsFromSameCycle(t *testing.T) {
	h := newHarness(t)
	var cycle atomic.Int32
	h.gw.OnFetchJob(func(_ context.Context, id string) (model.JobFields, error) {
		n := int(cycle.Load())
		return model.JobFields{ID: id, Status: model.StatusProcessing, ProgressPct: float64(n * 10), CompletedSegments: n}, nil
	})
	h.gw.OnFetchSegments(func(context.Context, string) ([]model.Segment, error) {
		n := int(cycle.Load())
		segs := make([]model.Segment, n)
		for i := range segs {
			segs[i] = model.Segment{ID: fmt.Sprintf("s%d", i+1), OrderNo: i + 1, StartMs: int64(i) * 1000, EndMs: int64(i+1) * 1000}
		}
		return segs, nil
	})
	require.NoError(t, h.eng.Load(context.Background(), "job-1"))

	for n := 1; n <= 5; n++ {
		cycle.Store(int32(n))
		h.tick()
		snap := h.eng.State().Snapshot
		assert.Equal(t, snap.Job.CompletedSegments, len(snap.Segments))
		assert.Equal(t, float64(n*10), snap.Job.ProgressPct)
	}
}

func TestRefresh_KeepsSegmentsWhenSegmentFetchFails(t *testing.T) {
	h := newHarness(t)
	h.gw.Segments([]model.Segment{{ID: "s1", OrderNo: 1, EndMs: 1000}}, nil)
	h.load(processing("job-1", 10))

	h.gw.Segments(nil, errUnreachable)
	h.gw.Job(processing("job-1", 40), nil)
	h.tick()

	snap := h.eng.State().Snapshot
	assert.Equal(t, 40.0, snap.Job.ProgressPct)
	require.Len(t, snap.Segments, 1)
	assert.Equal(t, "s1", snap.Segments[0].ID)
}

func TestRefresh_FetchesPeopleOnTerminal(t *testing.T) {
	h := newHarness(t)
	h.load(processing("job-1", 90))
	require.Equal(t, 1, h.gw.Calls(gatewaytest.OpFetchPeople))

	low, high := 0.2, 0.9
	h.gw.OnFetchPeople(func(context.Context, string) ([]model.Person, error) {
		return []model.Person{{Name: "Zoe"}, {Name: "Ada", Confidence: &low}, {Name: "Bob", Confidence: &high}}, nil
	})
	h.gw.Job(model.JobFields{ID: "job-1", Status: model.StatusCompleted, ProgressPct: 100}, nil)
	h.tick()

	snap := h.eng.State().Snapshot
	assert.Equal(t, 2, h.gw.Calls(gatewaytest.OpFetchPeople))
	require.Len(t, snap.People, 3)
	assert.Equal(t, []string{"Bob", "Ada", "Zoe"}, []string{snap.People[0].Name, snap.People[1].Name, snap.People[2].Name})
}

func TestRefresh_Preconditions(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, h.eng.StartPolling(), ErrInvalidState)
	assert.ErrorIs(t, h.eng.StopPolling(), ErrInvalidState)
}

func TestStopPolling_InvalidatesDequeuedTick(t *testing.T) {
	h := newHarness(t)
	h.load(processing("job-1", 10))
	armed := h.clock.Last()
	require.NotNil(t, armed)

	require.NoError(t, h.eng.StopPolling())
	require.NoError(t, h.eng.StopPolling())
	assert.Equal(t, int32(1), h.sched.stops.Load())
	assert.False(t, h.eng.State().IsPolling)

	armed.Fire()
	assert.Equal(t, 1, h.gw.Calls(gatewaytest.OpFetchJob))
	assert.Empty(t, h.clock.Pending())

	require.NoError(t, h.eng.StartPolling())
	assert.True(t, h.eng.State().IsPolling)
	assert.Len(t, h.clock.Pending(), 1)
}

func TestClose_DiscardsInFlightResult(t *testing.T) {
	h := newHarness(t)
	h.load(processing("job-1", 10))
	updates, cancel := h.eng.Subscribe()
	defer cancel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	h.gw.OnFetchJob(func(_ context.Context, id string) (model.JobFields, error) {
		started <- struct{}{}
		<-release
		return processing(id, 99), nil
	})

	type result struct {
		ran bool
		err error
	}
	res := make(chan result, 1)
	go func() {
		ran, err := h.eng.Refresh(context.Background())
		res <- result{ran, err}
	}()
	<-started

	h.eng.Close()
	close(release)
	r := <-res
	assert.False(t, r.ran)
	assert.ErrorIs(t, r.err, ErrSessionClosed)
	assert.Equal(t, 10.0, h.eng.State().Snapshot.Job.ProgressPct)
	assert.True(t, h.eng.Closed())
	assert.Empty(t, h.clock.Pending())

	for range updates {
	}
}

func TestSubscribe_LatestWins(t *testing.T) {
	h := newHarness(t)
	updates, cancel := h.eng.Subscribe()

	first := <-updates
	assert.Equal(t, PhaseNotStarted, first.Phase)

	h.load(processing("job-1", 10))
	latest := <-updates
	assert.Equal(t, PhaseReady, latest.Phase)
	assert.True(t, latest.IsPolling)

	select {
	case v := <-updates:
		t.Fatalf("unexpected extra state %+v", v)
	default:
	}

	cancel()
	cancel()
	_, ok := <-updates
	assert.False(t, ok)
}

func TestSubscribe_AfterClose(t *testing.T) {
	h := newHarness(t)
	h.eng.Close()
	updates, cancel := h.eng.Subscribe()
	defer cancel()

	st, ok := <-updates
	assert.True(t, ok)
	assert.Equal(t, PhaseNotStarted, st.Phase)
	_, ok = <-updates
	assert.False(t, ok)
}

func TestObserver_SeesEveryMerge(t *testing.T) {
	var mu sync.Mutex
	var seen [][2]float64
	obs := ObserverFunc(func(_ context.Context, prev, next *model.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		p := -1.0
		if prev != nil {
			p = prev.Job.ProgressPct
		}
		seen = append(seen, [2]float64{p, next.Job.ProgressPct})
	})
	h := newHarness(t, WithObserver(obs))
	h.load(processing("job-1", 10))

	h.gw.Job(processing("job-1", 20), nil)
	h.tick()
	h.gw.Job(model.JobFields{}, errUnreachable)
	h.tick()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][2]float64{{-1, 10}, {10, 20}}, seen)
}

func TestRealScheduler_PollsUntilTerminal(t *testing.T) {
	gw := gatewaytest.New()
	var polls atomic.Int32
	gw.OnFetchJob(func(_ context.Context, id string) (model.JobFields, error) {
		if polls.Add(1) >= 4 {
			return model.JobFields{ID: id, Status: model.StatusCompleted, ProgressPct: 100}, nil
		}
		return processing(id, float64(polls.Load()*10)), nil
	})
	policy := poll.Policy{BaseInterval: 5 * time.Millisecond, MaxInterval: 20 * time.Millisecond, Jitter: time.Millisecond, WarnAfter: 5}
	eng := New(gw, WithPolicy(policy), WithLogger(zerolog.Nop()))
	defer eng.Close()

	require.NoError(t, eng.Load(context.Background(), "job-1"))
	require.Eventually(t, func() bool {
		st := eng.State()
		return !st.IsPolling && st.Snapshot.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)

	calls := gw.Calls(gatewaytest.OpFetchJob)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, gw.Calls(gatewaytest.OpFetchJob))
}
