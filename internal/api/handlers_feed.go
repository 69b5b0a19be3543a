// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package api

import (
	"net/http"

	"github.com/tomtom215/mentio/internal/logging"
	ws "github.com/tomtom215/mentio/internal/websocket"
)

// LiveFeed upgrades the connection and attaches it to the mention feed hub.
//
// GET /api/v1/events/live
//
// Every matched mention flowing through the queue is pushed to connected
// clients as it arrives. Delivery is best effort; see the websocket package.
func (h *Handler) LiveFeed(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		logging.Warn().Msg("Live feed connection rejected: hub not initialized")
		NewResponseWriter(w, r).ServiceUnavailable("Live feed unavailable")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Error().Err(err).Msg("Live feed upgrade error")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
