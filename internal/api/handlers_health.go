// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/mentio/internal/logging"
)

// Health reports overall process health.
//
// GET /health
//
// Always answers 200; a stream outage or store failure is reported as
// "degraded" rather than an error, since the process itself is fine and
// the liveness checker will recover the stream on its own.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	keys, storeErr := h.storeProbe()
	st := h.stream.Status()

	status := "healthy"
	if storeErr != nil || !st.Running {
		status = "degraded"
	}

	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":         status,
		"version":        h.version,
		"store_ok":       storeErr == nil,
		"store_keys":     keys,
		"stream_running": st.Running,
		"stream_state":   string(st.State),
		"uptime":         time.Since(h.startTime).Seconds(),
	})
}

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
//
// GET /health/live
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests (Kubernetes-style).
// Returns 200 OK only when the credential store answers; without it the
// OAuth flow, dedup, and dispatch all fail, so traffic should hold off.
//
// GET /health/ready
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if _, err := h.storeProbe(); err != nil {
		logging.Warn().Err(err).Msg("Readiness probe failed, credential store unreachable")
		rw.ServiceUnavailable("Credential store unreachable")
		return
	}

	rw.Success(map[string]interface{}{
		"ready_to_serve": true,
		"store_ok":       true,
		"uptime":         time.Since(h.startTime).Seconds(),
	})
}

// storeProbe exercises a read against the credential store and reports the
// number of live keys.
func (h *Handler) storeProbe() (int, error) {
	if h.kv == nil {
		return 0, errors.New("store not configured")
	}
	return h.kv.Count()
}
