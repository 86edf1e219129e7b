// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience guards calls to a flaky dependency.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/vidsync/internal/metrics"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	defaultThreshold = 5
	defaultReset     = 30 * time.Second
)

type clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// CircuitBreaker stops calling a backend that keeps failing at the
// transport level. Only errors accepted by the failure predicate count
// toward the threshold; application-level rejections (conflicts, auth) pass
// through without tripping it.
type CircuitBreaker struct {
	name      string
	threshold int
	reset     time.Duration
	clock     clock
	isFailure func(error) bool
	onChange  func(from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

type Option func(*CircuitBreaker)

func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithFailurePredicate limits which errors count as breaker failures.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.isFailure = fn }
}

// WithStateChange registers fn for every transition. It runs outside the
// breaker lock.
func WithStateChange(fn func(from, to State)) Option {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// NewCircuitBreaker opens after threshold consecutive failures and admits
// one probe once reset has elapsed. Non-positive values fall back to 5
// failures and 30s.
func NewCircuitBreaker(name string, threshold int, reset time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if reset <= 0 {
		reset = defaultReset
	}
	cb := &CircuitBreaker{
		name:      name,
		threshold: threshold,
		reset:     reset,
		clock:     wallClock{},
		isFailure: func(err error) bool { return err != nil },
		state:     StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.SetCircuitBreakerState(name, string(StateClosed))
	return cb
}

// Execute runs fn unless the breaker is open. While half-open only one
// probe runs at a time; concurrent callers get ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err != nil && cb.isFailure(err))
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var from State
	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		return false, nil
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.reset {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		from = cb.setLocked(StateHalfOpen)
	}
	if cb.probing {
		cb.mu.Unlock()
		return false, ErrCircuitOpen
	}
	cb.probing = true
	cb.mu.Unlock()

	cb.changed(from, StateHalfOpen)
	return true, nil
}

func (cb *CircuitBreaker) settle(probe, failed bool) {
	cb.mu.Lock()
	if probe {
		cb.probing = false
	}
	from, to := cb.state, cb.state
	switch {
	case !failed:
		cb.failures = 0
		to = StateClosed
	case cb.state == StateHalfOpen:
		cb.failures++
		to = StateOpen
		metrics.RecordCircuitBreakerTrip(cb.name, "probe_failed")
	default:
		cb.failures++
		if cb.failures >= cb.threshold && cb.state == StateClosed {
			to = StateOpen
			metrics.RecordCircuitBreakerTrip(cb.name, "threshold_exceeded")
		}
	}
	cb.setLocked(to)
	cb.mu.Unlock()

	if from != to {
		cb.changed(from, to)
	}
}

// setLocked moves to next and returns the previous state.
func (cb *CircuitBreaker) setLocked(next State) State {
	prev := cb.state
	if prev == next {
		return prev
	}
	cb.state = next
	if next == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.SetCircuitBreakerState(cb.name, string(next))
	return prev
}

func (cb *CircuitBreaker) changed(from, to State) {
	if cb.onChange != nil && from != "" && from != to {
		cb.onChange(from, to)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
