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
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidsync_http_request_duration_seconds",
		Help:    "Local API request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidsync_http_requests_in_flight",
		Help: "Local API requests currently being served",
	})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsync_http_rate_limited_total",
		Help: "Local API requests rejected by the rate limiter",
	}, []string{"route"})
)

// ObserveHTTPRequest records one finished API request. route is the chi
// pattern, not the raw path.
func ObserveHTTPRequest(method, route, status string, elapsed time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}

// HTTPInFlight adjusts the in-flight gauge by delta.
func HTTPInFlight(delta float64) {
	httpRequestsInFlight.Add(delta)
}

// RecordRateLimited counts a 429.
func RecordRateLimited(route string) {
	rateLimited.WithLabelValues(route).Inc()
}
