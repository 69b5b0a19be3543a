// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package websocket implements the live mention feed.
//
// The Hub fans incoming mentions out to connected WebSocket clients.
// The Bridge subscribes to the mention queue and forwards each decoded
// mention to the Hub, so feed clients observe the same events the reply
// dispatcher consumes, without competing with it for deliveries.
//
// Delivery to the feed is best-effort by design: a mention is shown to
// whoever is connected when it arrives. Clients that fall behind are
// disconnected rather than buffered without bound, and missed mentions
// are not replayed. The reply pipeline, not the feed, is the durable
// consumer.
//
// Both the Hub and the Bridge expose Run(ctx) methods suitable for
// suture supervision: they block until the context is canceled and
// return ctx.Err() on shutdown.
package websocket
