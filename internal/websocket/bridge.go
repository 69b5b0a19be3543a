// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package websocket

import (
	"context"

	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/queue"
)

// Bridge forwards queued mentions to the feed hub. It holds its own
// durable subscription on the mention subject, separate from the reply
// dispatcher's consumer, and only ever receives newly published
// mentions.
type Bridge struct {
	hub        *Hub
	subscriber *queue.Subscriber
	subject    string
}

// NewBridge creates a queue-to-feed bridge for the given subject.
func NewBridge(hub *Hub, subscriber *queue.Subscriber, subject string) *Bridge {
	return &Bridge{
		hub:        hub,
		subscriber: subscriber,
		subject:    subject,
	}
}

// Run consumes mentions until the context is canceled. Designed for
// suture supervision; a restart resubscribes from new messages only.
func (b *Bridge) Run(ctx context.Context) error {
	logging.Info().
		Str("component", "feed").
		Str("subject", b.subject).
		Msg("Live feed bridge started")

	return b.subscriber.NewMentionHandler(b.subject).
		Handle(b.forward).
		Run(ctx)
}

// forward hands one decoded mention to the hub. It never fails: feed
// delivery is best-effort, and a nack here would only force pointless
// redelivery of an event the reply pipeline already owns.
func (b *Bridge) forward(_ context.Context, m *queue.Message) error {
	b.hub.BroadcastMention(m)
	return nil
}
