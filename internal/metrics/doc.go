// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements application instrumentation using the Prometheus client
library, exposing metrics for monitoring the ingestion pipeline, credential
lifecycle, and system health.

# Overview

The package provides metrics for:
  - Stream ingestion (connects, restarts, per-line outcomes)
  - Event flow (received, deduplicated, forwarded)
  - Queue traffic (published, consumed, publish failures)
  - Reply dispatch decisions and POST latency
  - Token refresh outcomes
  - API endpoint latency and throughput
  - WebSocket feed connections
  - Circuit breaker state on the reply path

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8425/metrics

# Staleness Monitoring

The stream_last_event_timestamp_seconds gauge mirrors the persisted
last-event time; alerting on its age is the external counterpart of the
built-in liveness watchdog.

# Usage

Metrics are registered automatically via promauto at package
initialization. Use the package-level variables directly or the Record*
helpers for compound updates:

	metrics.RecordStreamConnect(true)
	metrics.RecordEventSeen(time.Now())
	metrics.DispatchDecisions.WithLabelValues("ack").Inc()
*/
package metrics
