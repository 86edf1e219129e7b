// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker states as exported in the state label.
const (
	breakerClosed   = "closed"
	breakerHalfOpen = "half-open"
	breakerOpen     = "open"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vidsync_breaker_state",
		Help: "One-hot circuit breaker state per breaker",
	}, []string{"breaker", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsync_breaker_trips_total",
		Help: "Circuit breaker transitions into open, by cause",
	}, []string{"breaker", "cause"})
)

// SetCircuitBreakerState marks state as the only active state of breaker.
func SetCircuitBreakerState(breaker, state string) {
	for _, s := range [...]string{breakerClosed, breakerHalfOpen, breakerOpen} {
		g := breakerState.WithLabelValues(breaker, s)
		if s == state {
			g.Set(1)
		} else {
			g.Set(0)
		}
	}
}

func RecordCircuitBreakerTrip(breaker, cause string) {
	breakerTrips.WithLabelValues(breaker, cause).Inc()
}
