// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package services

import (
	"context"
)

// FeedHub interface matches the WebSocket hub's Run method.
//
// Satisfied by *websocket.Hub from internal/websocket/hub.go. Run
// processes client registration and broadcasts until the context is
// canceled, then closes every connected client.
type FeedHub interface {
	Run(ctx context.Context) error
}

// FeedHubService wraps the live-feed WebSocket hub as a supervised service.
//
// Example usage:
//
//	hub := websocket.NewHub()
//	svc := services.NewFeedHubService(hub)
//	tree.AddMessagingService(svc)
type FeedHubService struct {
	hub  FeedHub
	name string
}

// NewFeedHubService creates a new feed hub service wrapper.
func NewFeedHubService(hub FeedHub) *FeedHubService {
	return &FeedHubService{
		hub:  hub,
		name: "feed-hub",
	}
}

// Serve implements suture.Service.
func (f *FeedHubService) Serve(ctx context.Context) error {
	return f.hub.Run(ctx)
}

// String implements fmt.Stringer for logging.
func (f *FeedHubService) String() string {
	return f.name
}

// FeedBridge interface matches the queue-to-feed bridge's Run method.
//
// Satisfied by *websocket.Bridge from internal/websocket/bridge.go.
type FeedBridge interface {
	Run(ctx context.Context) error
}

// FeedBridgeService wraps the queue-to-feed bridge as a supervised service.
//
// A restart resubscribes from new messages only; mentions broadcast to the
// feed are best-effort and never replayed.
//
// Example usage:
//
//	bridge := websocket.NewBridge(hub, subscriber, cfg.Queue.Subject)
//	svc := services.NewFeedBridgeService(bridge)
//	tree.AddMessagingService(svc)
type FeedBridgeService struct {
	bridge FeedBridge
	name   string
}

// NewFeedBridgeService creates a new feed bridge service wrapper.
func NewFeedBridgeService(bridge FeedBridge) *FeedBridgeService {
	return &FeedBridgeService{
		bridge: bridge,
		name:   "feed-bridge",
	}
}

// Serve implements suture.Service.
func (f *FeedBridgeService) Serve(ctx context.Context) error {
	return f.bridge.Run(ctx)
}

// String implements fmt.Stringer for logging.
func (f *FeedBridgeService) String() string {
	return f.name
}
