// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsync_poll_total",
		Help: "Refresh attempts by outcome (success, failure, skipped, cancelled)",
	}, []string{"result"})

	pollBackoff = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidsync_poll_backoff_seconds",
		Help:    "Interval chosen after a failed refresh",
		Buckets: []float64{1, 2, 4, 8, 16, 30, 60},
	})

	pollWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidsync_poll_warnings_total",
		Help: "Times a poll warning was surfaced after consecutive failures",
	})

	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsync_sync_state_transitions_total",
		Help: "Synchronization state transitions",
	}, []string{"from", "to"})

	actionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsync_actions_total",
		Help: "Mutating actions by kind and result (success, failure, rejected)",
	}, []string{"action", "result"})

	snapshotAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsync_snapshot_anomalies_total",
		Help: "Unexpected backend data observed while merging snapshots",
	}, []string{"kind"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidsync_active_sessions",
		Help: "Job viewing sessions currently open",
	})

	terminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsync_terminal_reached_total",
		Help: "Sessions that observed a terminal job status",
	}, []string{"status"})
)

// RecordPoll counts one refresh outcome.
func RecordPoll(result string) {
	pollTotal.WithLabelValues(result).Inc()
}

// ObservePollBackoff records the interval selected after a failure.
func ObservePollBackoff(d time.Duration) {
	pollBackoff.Observe(d.Seconds())
}

// IncPollWarning counts a surfaced poll warning.
func IncPollWarning() {
	pollWarnings.Inc()
}

// RecordStateTransition counts a SyncState phase change.
func RecordStateTransition(from, to string) {
	stateTransitions.WithLabelValues(from, to).Inc()
}

// RecordAction counts an action outcome.
func RecordAction(action, result string) {
	actionTotal.WithLabelValues(action, result).Inc()
}

// RecordAnomaly counts a snapshot anomaly.
func RecordAnomaly(kind string) {
	snapshotAnomalies.WithLabelValues(kind).Inc()
}

// IncActiveSessions marks a session as opened.
func IncActiveSessions() {
	activeSessions.Inc()
}

// DecActiveSessions marks a session as closed.
func DecActiveSessions() {
	activeSessions.Dec()
}

// RecordTerminal counts arrival at a terminal status.
func RecordTerminal(status string) {
	terminalTotal.WithLabelValues(status).Inc()
}
