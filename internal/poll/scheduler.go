// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package poll

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Scheduler emits ticks at an interval that starts at the policy base,
// grows on consecutive failures and resets on success. It knows nothing
// about what a tick does.
//
// Each Start arms a timer tagged with a generation number. Stop and Start
// bump the generation, so a timer that already fired but has not yet
// delivered its tick is discarded instead of calling the handler.
type Scheduler struct {
	policy Policy
	clock  Clock
	jitter func(max time.Duration) time.Duration

	mu       sync.Mutex
	running  bool
	gen      uint64
	timer    Timer
	onTick   func()
	interval time.Duration
	failures int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithJitter replaces the random jitter source. fn receives the policy's
// jitter bound and must return a value in [0, bound).
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(s *Scheduler) { s.jitter = fn }
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(policy Policy, opts ...Option) *Scheduler {
	s := &Scheduler{
		policy:   policy,
		clock:    realClock{},
		jitter:   randomJitter,
		interval: policy.BaseInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// Policy returns the scheduler's policy.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Start begins emitting ticks at the current interval. Calling Start while
// running replaces the previous timer and handler.
func (s *Scheduler) Start(onTick func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.running = true
	s.onTick = onTick
	s.armLocked()
}

// Stop cancels the timer. Safe to call when not running. No tick is
// delivered after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	s.gen++
	s.running = false
	s.onTick = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// caller holds s.mu
func (s *Scheduler) armLocked() {
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.interval, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if !s.running || gen != s.gen {
		s.mu.Unlock()
		return
	}
	handler := s.onTick
	s.timer = nil
	s.mu.Unlock()

	if handler != nil {
		handler()
	}

	// Re-arm with whatever interval the handler left behind, so backoff
	// applies to the very next cycle.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && gen == s.gen && s.timer == nil {
		s.armLocked()
	}
}

// RecordSuccess resets the interval to base and clears the failure count.
func (s *Scheduler) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	s.interval = s.policy.BaseInterval
}

// RecordFailure counts a consecutive failure and returns the new interval:
// Backoff(prior failures) plus jitter in [0, Policy.Jitter).
func (s *Scheduler) RecordFailure() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.policy.Backoff(s.failures)
	if j := s.jitter(s.policy.Jitter); j > 0 {
		d += j
	}
	s.failures++
	s.interval = d
	return d
}

// Reset restores the base interval and zero failures without touching the
// timer.
func (s *Scheduler) Reset() {
	s.RecordSuccess()
}

// Interval returns the delay used for the next arm.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// ConsecutiveFailures returns the number of failures since the last success.
func (s *Scheduler) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Running reports whether a timer is armed or a tick is being delivered.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
