// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package poll drives periodic synchronization ticks with exponential
// backoff and jitter.
package poll

import (
	"fmt"
	"time"
)

const (
	DefaultBaseInterval = 2 * time.Second
	DefaultMaxInterval  = 30 * time.Second
	DefaultJitter       = 500 * time.Millisecond
	DefaultWarnAfter    = 5
)

// Policy configures polling cadence. It is fixed for the lifetime of a
// Scheduler.
type Policy struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration
	Jitter       time.Duration // upper bound (exclusive) of the random addition
	WarnAfter    int           // consecutive failures before a warning is surfaced
}

// DefaultPolicy returns 2s base, 30s cap, 500ms jitter, warn after 5 failures.
func DefaultPolicy() Policy {
	return Policy{
		BaseInterval: DefaultBaseInterval,
		MaxInterval:  DefaultMaxInterval,
		Jitter:       DefaultJitter,
		WarnAfter:    DefaultWarnAfter,
	}
}

// Validate rejects policies that cannot produce a sane schedule.
func (p Policy) Validate() error {
	if p.BaseInterval <= 0 {
		return fmt.Errorf("poll: base interval must be positive, got %s", p.BaseInterval)
	}
	if p.MaxInterval < p.BaseInterval {
		return fmt.Errorf("poll: max interval %s is below base interval %s", p.MaxInterval, p.BaseInterval)
	}
	if p.Jitter < 0 {
		return fmt.Errorf("poll: jitter must not be negative, got %s", p.Jitter)
	}
	if p.WarnAfter < 1 {
		return fmt.Errorf("poll: warn threshold must be at least 1, got %d", p.WarnAfter)
	}
	return nil
}

// Backoff returns the pre-jitter interval after n prior consecutive
// failures: min(MaxInterval, BaseInterval * 2^n).
func (p Policy) Backoff(n int) time.Duration {
	if n <= 0 {
		return p.BaseInterval
	}
	d := p.BaseInterval
	for i := 0; i < n; i++ {
		d *= 2
		if d >= p.MaxInterval || d <= 0 {
			return p.MaxInterval
		}
	}
	return d
}
