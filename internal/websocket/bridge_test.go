// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package websocket

import (
	"context"
	"testing"
	"time"
)

func TestBridge_ForwardBroadcastsToHub(t *testing.T) {
	hub := setupHub(t)
	client := createTestClient(hub, 256)
	registerClient(hub, client)

	bridge := NewBridge(hub, nil, "mentio.events")

	m := testMention("1893000000000000003", "999", "queued")
	if err := bridge.forward(context.Background(), m); err != nil {
		t.Fatalf("forward returned error: %v", err)
	}

	select {
	case msg := <-client.send:
		mention, ok := msg.Data.(FeedMention)
		if !ok {
			t.Fatalf("message data is %T, want FeedMention", msg.Data)
		}
		if mention.TweetID != "1893000000000000003" {
			t.Errorf("tweet_id = %q, want 1893000000000000003", mention.TweetID)
		}
	case <-time.After(time.Second):
		t.Fatal("forwarded mention never reached the client")
	}
}

func TestBridge_ForwardNeverFails(t *testing.T) {
	// Nobody connected and the hub not running: forward still succeeds,
	// because feed delivery must not push redeliveries into the queue.
	hub := NewHub()
	for i := 0; i < 300; i++ {
		// Overflow the broadcast buffer; drops are absorbed silently.
		if err := NewBridge(hub, nil, "mentio.events").forward(context.Background(), testMention("9", "1", "x")); err != nil {
			t.Fatalf("forward returned error on drop: %v", err)
		}
	}
}
