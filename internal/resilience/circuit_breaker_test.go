// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

var (
	errTransport = errors.New("connection refused")
	errConflict  = errors.New("conflict")
)

func onlyTransport(err error) bool { return errors.Is(err, errTransport) }

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 3, 10*time.Second, WithClock(clock))

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errTransport }), errTransport)
	}
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(func() error { return errTransport })
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))

	_ = cb.Execute(func() error { return errTransport })
	assert.Equal(t, StateOpen, cb.State())

	clock.now = clock.now.Add(11 * time.Second)

	// Failed probe re-opens.
	_ = cb.Execute(func() error { return errTransport })
	assert.Equal(t, StateOpen, cb.State())

	clock.now = clock.now.Add(11 * time.Second)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SingleProbeWhileHalfOpen(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, time.Second, WithClock(clock))
	_ = cb.Execute(func() error { return errTransport })
	clock.now = clock.now.Add(2 * time.Second)

	var inner error
	_ = cb.Execute(func() error {
		inner = cb.Execute(func() error { return nil })
		return nil
	})
	assert.ErrorIs(t, inner, ErrCircuitOpen, "second caller rejected while the probe is out")
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_PredicateIgnoresApplicationErrors(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute, WithFailurePredicate(onlyTransport))

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errConflict }), errConflict)
	}
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(func() error { return errTransport })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	var seen []string
	cb := NewCircuitBreaker("test", 2, time.Second, WithClock(clock),
		WithStateChange(func(from, to State) { seen = append(seen, string(from)+">"+string(to)) }))

	_ = cb.Execute(func() error { return errTransport })
	assert.Empty(t, seen)
	_ = cb.Execute(func() error { return errTransport })
	clock.now = clock.now.Add(2 * time.Second)
	assert.NoError(t, cb.Execute(func() error { return nil }))

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, seen)
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("test", 0, 0)
	assert.Equal(t, defaultThreshold, cb.threshold)
	assert.Equal(t, defaultReset, cb.reset)
	assert.Equal(t, StateClosed, cb.State())
}
