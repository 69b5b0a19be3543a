// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/metrics"
	"github.com/tomtom215/mentio/internal/stream"
	"github.com/tomtom215/mentio/internal/token"
	"github.com/tomtom215/mentio/internal/upstream"
)

// StatusResponse reports the bot's liveness view. Key names are part of the
// operational contract; monitoring configured against them must keep working
// across releases.
type StatusResponse struct {
	Running            bool   `json:"running"`
	State              string `json:"state"`
	LastTweetTime      string `json:"lastTweetTime,omitempty"`
	TimeSinceLastTweet int64  `json:"timeSinceLastTweet"`
	HasAccessToken     bool   `json:"hasAccessToken"`
	HasRefreshToken    bool   `json:"hasRefreshToken"`
	UptimeSeconds      int64  `json:"uptimeSeconds"`
	Version            string `json:"version"`
}

// RulesResponse lists the filter rules active on the upstream stream.
type RulesResponse struct {
	Rules []upstream.Rule `json:"rules"`
	Count int             `json:"count"`
}

// Status reports stream liveness and credential presence.
//
// GET /api/v1/status
//
// Serves entirely from local state; it never contacts the upstream API, so
// it stays fast and answerable even when the provider is down.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.statusPayload())
}

// statusPayload builds the status snapshot shared by the status and stream
// control endpoints.
func (h *Handler) statusPayload() StatusResponse {
	st := h.stream.Status()

	resp := StatusResponse{
		Running:            st.Running,
		State:              string(st.State),
		TimeSinceLastTweet: st.TimeSinceLastEvent.Milliseconds(),
		HasAccessToken:     h.tokens.HasAccessToken(),
		HasRefreshToken:    h.tokens.HasRefreshToken(),
		UptimeSeconds:      int64(time.Since(h.startTime).Seconds()),
		Version:            h.version,
	}
	if !st.LastEventTime.IsZero() {
		resp.LastTweetTime = st.LastEventTime.UTC().Format(time.RFC3339)
	}
	return resp
}

// Rules lists the filter rules configured on the upstream stream.
//
// GET /api/v1/rules
//
// Requires a valid access token; answers 503 until the OAuth flow has been
// completed at least once.
func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	tok, err := h.tokens.GetValidToken(ctx)
	if err != nil {
		if errors.Is(err, token.ErrCredentialUnavailable) {
			rw.ServiceUnavailable("No access token available, complete the authorization flow first")
			return
		}
		logging.Error().Err(err).Msg("Failed to obtain access token for rule listing")
		rw.InternalError("Failed to obtain access token")
		return
	}

	rules, err := h.client.ListRules(ctx, tok.AccessToken)
	if err != nil {
		rw.ExternalServiceError("rules endpoint", err)
		return
	}

	rw.Success(RulesResponse{Rules: rules, Count: len(rules)})
}

// StreamStart forces a fresh stream connection.
//
// POST /api/v1/stream/start
//
// Tears down any existing connection first, so it doubles as a manual
// restart. The connection is established asynchronously; the response
// reflects the state at the moment the restart was accepted.
func (h *Handler) StreamStart(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.stream.Start(); err != nil {
		if errors.Is(err, stream.ErrNotRunning) {
			rw.ServiceUnavailable("Stream supervisor is not running")
			return
		}
		logging.Error().Err(err).Msg("Manual stream start failed")
		rw.InternalError("Failed to start stream")
		return
	}

	metrics.RecordStreamRestart("manual")
	logging.Info().Str("component", "api").Msg("Manual stream restart requested")

	rw.Success(h.statusPayload())
}

// StreamStop tears down the stream connection and disarms the watchdog.
//
// POST /api/v1/stream/stop
//
// The stream stays down until restarted through the API or by the external
// staleness checker.
func (h *Handler) StreamStop(w http.ResponseWriter, r *http.Request) {
	h.stream.Stop()
	logging.Info().Str("component", "api").Msg("Manual stream stop requested")
	NewResponseWriter(w, r).Success(h.statusPayload())
}
