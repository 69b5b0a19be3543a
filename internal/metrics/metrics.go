// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the mention pipeline:
// - Stream ingestion (connects, restarts, line outcomes)
// - Queue traffic (published, consumed, publish failures)
// - Reply dispatch decisions and latency
// - Token refresh outcomes
// - API endpoint latency and throughput
// - WebSocket feed connections
// - Circuit breaker state on the reply path

var (
	// Stream Ingestion Metrics
	StreamEventsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_events_received_total",
			Help: "Total number of valid events parsed from the stream",
		},
	)

	StreamEventsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_events_deduplicated_total",
			Help: "Total number of events dropped as duplicates",
		},
	)

	StreamEventsForwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_events_forwarded_total",
			Help: "Total number of novel events forwarded to the queue",
		},
	)

	StreamLinesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_lines_skipped_total",
			Help: "Total number of stream lines skipped without forwarding",
		},
		[]string{"reason"}, // "heartbeat", "no_data", "malformed"
	)

	StreamConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_connects_total",
			Help: "Total number of stream connection attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	StreamRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_restarts_total",
			Help: "Total number of stream restarts",
		},
		[]string{"reason"}, // "watchdog", "connect_retry", "transport_error", "stale", "manual"
	)

	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connected",
			Help: "Whether the stream read loop is currently connected (1) or not (0)",
		},
	)

	StreamLastEventTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_last_event_timestamp_seconds",
			Help: "Unix timestamp of the last event seen on the stream",
		},
	)

	// Queue Metrics
	QueueMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_messages_published_total",
			Help: "Total number of messages published to the event queue",
		},
	)

	QueuePublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_publish_failures_total",
			Help: "Total number of failed queue publish attempts",
		},
	)

	QueueMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_messages_consumed_total",
			Help: "Total number of messages delivered to the dispatcher",
		},
	)

	// Reply Dispatch Metrics
	DispatchDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_decisions_total",
			Help: "Total number of dispatch decisions by outcome",
		},
		[]string{"decision"}, // "ack", "retry", "retry_credential"
	)

	ReplyPostDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reply_post_duration_seconds",
			Help:    "Duration of reply POST requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Token Lifecycle Metrics
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Total number of access token refresh attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	// Credential Store Metrics
	StoreSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_sweeps_total",
			Help: "Total number of expiry sweeps over the credential store",
		},
	)

	StoreEntriesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_entries_swept_total",
			Help: "Total number of expired entries removed by sweeps",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket Feed Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket feed connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to feed clients",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the active-request gauge at request start
// (increment=true) and completion (increment=false).
func TrackActiveRequest(increment bool) {
	if increment {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}

// RecordStreamConnect records the outcome of a stream connection attempt
// and flips the connected gauge accordingly.
func RecordStreamConnect(success bool) {
	if success {
		StreamConnects.WithLabelValues("success").Inc()
		StreamConnected.Set(1)
		return
	}
	StreamConnects.WithLabelValues("failure").Inc()
	StreamConnected.Set(0)
}

// RecordStreamRestart records a stream restart with its trigger reason.
func RecordStreamRestart(reason string) {
	StreamRestarts.WithLabelValues(reason).Inc()
}

// RecordLineSkipped records a stream line skipped without forwarding.
func RecordLineSkipped(reason string) {
	StreamLinesSkipped.WithLabelValues(reason).Inc()
}

// RecordEventSeen records a parsed event and updates the last-event
// timestamp gauge used for staleness dashboards.
func RecordEventSeen(at time.Time) {
	StreamEventsReceived.Inc()
	StreamLastEventTimestamp.Set(float64(at.Unix()))
}

// RecordTokenRefresh records a token refresh attempt outcome.
func RecordTokenRefresh(success bool) {
	if success {
		TokenRefreshes.WithLabelValues("success").Inc()
		return
	}
	TokenRefreshes.WithLabelValues("failure").Inc()
}

// RecordSweep records the outcome of a credential store expiry sweep.
func RecordSweep(removed int) {
	StoreSweeps.Inc()
	StoreEntriesSwept.Add(float64(removed))
}

// SetAppInfo sets the application info metric with version details.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

// StartUptimeTracking begins tracking application uptime. The returned
// stop function halts the ticker goroutine.
func StartUptimeTracking() func() {
	start := time.Now()
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				AppUptime.Set(time.Since(start).Seconds())
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}
