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
	gatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsync_gateway_requests_total",
		Help: "Gateway requests by operation and failure kind (ok on success)",
	}, []string{"op", "result"})

	gatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidsync_gateway_request_duration_seconds",
		Help:    "Gateway request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	gatewayShared = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsync_gateway_shared_responses_total",
		Help: "GET responses shared between concurrent callers",
	}, []string{"op"})
)

// RecordGatewayRequest records outcome and latency of one gateway call.
func RecordGatewayRequest(op, result string, elapsed time.Duration) {
	gatewayRequests.WithLabelValues(op, result).Inc()
	gatewayLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncGatewayShared counts a deduplicated GET.
func IncGatewayShared(op string) {
	gatewayShared.WithLabelValues(op).Inc()
}
