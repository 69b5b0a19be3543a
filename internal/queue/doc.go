// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package queue provides the durable mention pipeline between stream
// ingestion and reply dispatch, built on Watermill and NATS JetStream.
//
// Every mention that survives deduplication is published to a single
// JetStream stream before anything is done with it. The reply dispatcher
// consumes from that stream with a durable consumer, so a crash between
// ingestion and reply loses nothing:
//
//	┌──────────────────┐
//	│ Stream Supervisor │  (filtered-stream ingestion)
//	└────────┬─────────┘
//	         │ PublishMention
//	         ▼
//	┌──────────────────┐
//	│  NATS JetStream  │  ← durable mention log (MENTIO_EVENTS)
//	└────────┬─────────┘
//	         │
//	    ┌────┴─────────────┐
//	    ▼                  ▼
//	┌──────────┐    ┌──────────────┐
//	│ Consumer │    │  Subscriber  │
//	│(dispatch)│    │ (live feed)  │
//	└──────────┘    └──────────────┘
//
// # Delivery Semantics
//
// Two complementary layers keep replies from being posted twice:
//
//  1. The publisher sets the tweet ID as Nats-Msg-Id, so the broker drops
//     republished tweets inside the stream's duplicates window. This
//     absorbs replays caused by the proactive stream reconnects.
//  2. The dispatch consumer settles each delivery explicitly. A mention is
//     redelivered until the handler acknowledges it or the MaxDeliver
//     budget runs out, and the handler can ask for a delayed retry when
//     the failure is known to persist for a while (missing credentials).
//
// The live feed subscriber is deliberately weaker: it binds with
// DeliverNew and tolerates loss, because it only mirrors mentions to
// connected WebSocket clients.
//
// # Key Components
//
//   - EmbeddedServer: in-process NATS JetStream server for single-instance deployments
//   - StreamManager: idempotent stream provisioning with a duplicates window
//   - Publisher: Watermill publisher with reconnection handling and Msg-Id tracking
//   - Consumer: durable JetStream consumer driving ack/retry decisions
//   - Subscriber: Watermill subscriber for fan-out paths (live feed)
//
// # Usage Example
//
//	server, err := queue.NewEmbeddedServer(&serverCfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Shutdown(ctx)
//
//	pub, err := queue.NewPublisher(queue.DefaultPublisherConfig(server.ClientURL()), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pub.Close()
//
//	msg := queue.NewMessage(queue.Tweet{ID: "1", Text: "hi", AuthorID: "2"}, nil)
//	if err := pub.PublishMention(ctx, msg); err != nil {
//	    log.Fatal(err)
//	}
package queue
