// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/mentio/internal/config"
	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/store"
	"github.com/tomtom215/mentio/internal/stream"
	"github.com/tomtom215/mentio/internal/token"
	"github.com/tomtom215/mentio/internal/upstream"
	ws "github.com/tomtom215/mentio/internal/websocket"
)

// TokenManager is the slice of the OAuth manager the handlers need.
type TokenManager interface {
	BuildAuthorizationRequest(originURL string) (*token.AuthorizationRequest, error)
	CompleteHandshake(ctx context.Context, code, presentedState, originURL string) (*token.Token, error)
	GetValidToken(ctx context.Context) (*token.Token, error)
	HasAccessToken() bool
	HasRefreshToken() bool
}

// StreamController exposes stream lifecycle control to the API.
type StreamController interface {
	Status() stream.Status
	Start() error
	Stop()
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across multiple files:
//   - handlers.go: Handler struct, constructor, WebSocket origin checks (this file)
//   - handlers_auth.go: OAuth login and callback endpoints
//   - handlers_status.go: Status, rules, and stream control endpoints
//   - handlers_health.go: Liveness and readiness probes
//   - handlers_feed.go: Live mention feed WebSocket endpoint
type Handler struct {
	config    *config.Config
	tokens    TokenManager
	client    upstream.ClientInterface
	stream    StreamController
	kv        *store.Store
	hub       *ws.Hub
	startTime time.Time
	version   string
}

// NewHandler creates a new API handler with all required dependencies.
//
// Dependencies:
//   - cfg: Application configuration
//   - tokens: OAuth token manager for login, callback, and rule listing
//   - client: Upstream API client for rule listing
//   - streamCtl: Stream supervisor for status and manual control
//   - kv: Credential store, probed by the readiness endpoint
//   - hub: Feed hub for live mention WebSocket broadcasts
func NewHandler(cfg *config.Config, tokens TokenManager, client upstream.ClientInterface, streamCtl StreamController, kv *store.Store, hub *ws.Hub, version string) *Handler {
	return &Handler{
		config:    cfg,
		tokens:    tokens,
		client:    client,
		stream:    streamCtl,
		kv:        kv,
		hub:       hub,
		startTime: time.Now(),
		version:   version,
	}
}

// requestTimeout bounds handler calls that talk to the upstream API.
const requestTimeout = 15 * time.Second

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout for protection against slow client attacks.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// If no origin header, REJECT - legitimate browser WebSockets ALWAYS include Origin
	// Only non-browser clients (curl, scripts, mobile apps) omit Origin header
	// Allowing empty Origin bypasses CORS entirely - security vulnerability
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	// If config is nil, allow by default (fail open for tests/development)
	if h.config == nil {
		return true
	}

	// Check against allowed origins from config
	for _, allowedOrigin := range h.config.Server.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}

	// Origin not in allowed list - sanitize origin to prevent log injection
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// requestOrigin reconstructs the externally visible origin of the request so
// OAuth redirect URIs match whatever host the operator reached us on.
// X-Forwarded-Proto is honored for reverse proxy setups.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
// This includes newlines, carriage returns, tabs, and other control characters that could
// allow attackers to forge log entries or corrupt log files.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		// Replace control characters (0x00-0x1F and 0x7F) with a safe representation
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
