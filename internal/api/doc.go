// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package api provides the HTTP interface for operating the bot:
// OAuth login and callback, stream status and control, upstream rule
// inspection, the live mention feed over WebSocket, health probes and
// Prometheus metrics.
//
// All JSON endpoints share a single response envelope (see response.go)
// so clients can branch on success/error without per-endpoint shapes.
// Routing is built on chi with per-group rate limits; see router.go.
package api
