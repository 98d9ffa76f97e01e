/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dagr_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dagr_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dagr_api_active_connections",
			Help: "Number of in-flight API requests",
		},
	)

	APIWebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dagr_api_websocket_connections",
			Help: "Number of connected event stream clients",
		},
	)
)

// Planner metrics
var (
	ReflowOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dagr_reflow_operations_total",
			Help: "Total number of plan reflow operations",
		},
		[]string{"strategy", "outcome"},
	)

	ReflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dagr_reflow_duration_seconds",
			Help:    "Plan reflow duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"strategy"},
	)

	ValidationViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dagr_validation_violations_total",
			Help: "Total number of window validation violations",
		},
		[]string{"rule"},
	)

	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dagr_cache_operations_total",
			Help: "Total number of cache lookups by result",
		},
		[]string{"result"},
	)
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
