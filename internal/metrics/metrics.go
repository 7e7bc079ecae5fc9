// Package metrics defines the Prometheus instruments shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Push Dispatch Metrics
var (
	// PushSentTotal tracks notifications acknowledged by the provider, by protocol
	PushSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_sent_total",
			Help: "Total push notifications delivered, by protocol (v1/legacy)",
		},
		[]string{"protocol"},
	)

	// PushFailedTotal tracks notifications that could not be delivered, by protocol
	PushFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_failed_total",
			Help: "Total push notifications that failed, by protocol (v1/legacy)",
		},
		[]string{"protocol"},
	)

	// PushBroadcastDuration tracks end-to-end broadcast latency in seconds
	PushBroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "push_broadcast_duration_seconds",
			Help:    "End-to-end broadcast duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// TokenRefreshTotal tracks OAuth token refresh attempts by outcome
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_token_refresh_total",
			Help: "OAuth bearer token refresh attempts by status (ok/error)",
		},
		[]string{"status"},
	)
)

// Route Resolver Metrics
var (
	// RouteRequestsTotal tracks directions requests by outcome
	RouteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_requests_total",
			Help: "Directions provider requests by status (ok/rejected/transport)",
		},
		[]string{"status"},
	)

	// RouteShapeRetriesTotal tracks the one-shot plain retry after a 400 rejection
	RouteShapeRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "route_shape_retries_total",
			Help: "Retries issued after the provider rejected the request shape",
		},
	)

	// RouteRequestDuration tracks directions request latency in seconds
	RouteRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "route_request_duration_seconds",
			Help:    "Directions provider request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
	)
)

// Record Store Metrics
var (
	// StoreOpsTotal tracks record store operations by operation and status
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Record store operations by operation and status",
		},
		[]string{"operation", "status"},
	)
)

// Circuit Breaker Metrics
var (
	// CircuitBreakerState reports the current breaker state per component
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	// CircuitBreakerStateChanges counts breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Total circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)
)
