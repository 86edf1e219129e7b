// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package polltest provides a manually driven clock for scheduler tests.
package polltest

import (
	"sync"
	"time"

	"github.com/ManuGH/vidsync/internal/poll"
)

// ManualClock records armed timers and fires them only when told to.
type ManualClock struct {
	mu     sync.Mutex
	timers []*ManualTimer
}

// ManualTimer is a timer armed on a ManualClock.
type ManualTimer struct {
	clock   *ManualClock
	Delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// NewManualClock returns an empty clock.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// AfterFunc implements poll.Clock.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) poll.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &ManualTimer{clock: c, Delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop implements poll.Timer.
func (t *ManualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Fire runs the timer's callback even if it was stopped, emulating a timer
// the runtime had already dequeued when Stop was called.
func (t *ManualTimer) Fire() {
	t.clock.mu.Lock()
	t.fired = true
	fn := t.fn
	t.clock.mu.Unlock()
	fn()
}

// Pending returns armed timers that have neither fired nor been stopped.
func (c *ManualClock) Pending() []*ManualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*ManualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// Last returns the most recently armed timer, or nil.
func (c *ManualClock) Last() *ManualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// Advance fires the oldest pending timer and reports whether one existed.
func (c *ManualClock) Advance() bool {
	pending := c.Pending()
	if len(pending) == 0 {
		return false
	}
	pending[0].Fire()
	return true
}
