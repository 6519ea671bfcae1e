// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package metrics defines the Prometheus instrumentation of the sync
// pipeline. Collectors are registered on the default registry and exposed
// by the API at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Coalescer
	EventsNotified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharesync_events_notified_total",
			Help: "Preprint update notifications received inside a unit of work",
		},
	)

	EventsCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharesync_events_coalesced_total",
			Help: "Notifications merged into an already pending event",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharesync_events_published_total",
			Help: "Merged events handed to the transport at commit",
		},
		[]string{"result"}, // "ok", "error"
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharesync_events_consumed_total",
			Help: "Preprint update events taken off the event topic",
		},
		[]string{"result"}, // "handled", "dropped", "failed"
	)

	// Dispatcher
	SyncAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharesync_sync_attempts_total",
			Help: "SHARE sync attempts by path and classified outcome",
		},
		[]string{"path", "outcome"}, // path: "sync", "retry"
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sharesync_share_request_duration_seconds",
			Help:    "Duration of POST requests to SHARE",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status_class"}, // "2xx", "4xx", "5xx", "error"
	)

	GraphNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sharesync_graph_nodes",
			Help:    "Number of nodes in formatted preprint documents",
			Buckets: []float64{5, 10, 20, 50, 100, 200, 500},
		},
	)

	TimestampRegressions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharesync_date_updated_regressions_total",
			Help: "Documents whose date_updated is older than the last one sent",
		},
	)

	// Retry policy
	RetriesScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharesync_retries_scheduled_total",
			Help: "Retry tasks scheduled after transient failures",
		},
	)

	RetriesExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharesync_retries_exhausted_total",
			Help: "Retry chains abandoned after the maximum number of retries",
		},
	)

	RetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sharesync_retry_queue_depth",
			Help: "Retry tasks currently stored in the durable queue",
		},
	)

	// Side channels
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharesync_alerts_sent_total",
			Help: "Operator alerts by kind and channel result",
		},
		[]string{"kind", "channel", "result"},
	)

	IdentifierRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharesync_identifier_refreshes_total",
			Help: "DOI metadata refresh requests by status and result",
		},
		[]string{"status", "result"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sharesync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharesync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sharesync_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sharesync_websocket_clients",
			Help: "Connected live-feed clients",
		},
	)
)

// RecordSyncAttempt counts an attempt on path ("sync" or "retry").
func RecordSyncAttempt(path, outcome string) {
	SyncAttempts.WithLabelValues(path, outcome).Inc()
}

// RecordShareRequest observes a SHARE request. statusCode 0 means the
// request failed before a response arrived.
func RecordShareRequest(statusCode int, duration time.Duration) {
	SendDuration.WithLabelValues(StatusClass(statusCode)).Observe(duration.Seconds())
}

// StatusClass maps an HTTP status to "2xx".."5xx", or "error" for 0.
func StatusClass(statusCode int) string {
	if statusCode <= 0 {
		return "error"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}

// RecordAlert counts an alert delivery on channel.
func RecordAlert(kind, channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	AlertsSent.WithLabelValues(kind, channel, result).Inc()
}

// RecordIdentifierRefresh counts a DOI metadata refresh request.
func RecordIdentifierRefresh(status string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	IdentifierRefreshes.WithLabelValues(status, result).Inc()
}

// RecordPublish counts merged events handed to the transport.
func RecordPublish(n int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(result).Add(float64(n))
}

// RecordConsumed counts one consumed event.
func RecordConsumed(result string) {
	EventsConsumed.WithLabelValues(result).Inc()
}

// RecordAPIRequest observes one API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
