// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

func TestFeedHubService_Interface(t *testing.T) {
	var _ suture.Service = (*FeedHubService)(nil)
}

func TestNewFeedHubService(t *testing.T) {
	hub := newMockRunner()
	svc := NewFeedHubService(hub)

	if svc == nil {
		t.Fatal("NewFeedHubService returned nil")
	}
	if svc.name != "feed-hub" {
		t.Errorf("expected name 'feed-hub', got %q", svc.name)
	}
}

func TestFeedHubService_Serve(t *testing.T) {
	hub := newMockRunner()
	svc := NewFeedHubService(hub)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Serve(ctx)
	}()

	select {
	case <-hub.started:
	case <-time.After(time.Second):
		t.Fatal("hub did not start")
	}

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Serve did not return after context cancellation")
	}

	if hub.RunCallCount() != 1 {
		t.Errorf("expected 1 Run call, got %d", hub.RunCallCount())
	}
}

func TestFeedHubService_String(t *testing.T) {
	svc := NewFeedHubService(newMockRunner())

	if svc.String() != "feed-hub" {
		t.Errorf("expected 'feed-hub', got %q", svc.String())
	}
}

func TestFeedBridgeService_Interface(t *testing.T) {
	var _ suture.Service = (*FeedBridgeService)(nil)
}

func TestNewFeedBridgeService(t *testing.T) {
	bridge := newMockRunner()
	svc := NewFeedBridgeService(bridge)

	if svc == nil {
		t.Fatal("NewFeedBridgeService returned nil")
	}
	if svc.name != "feed-bridge" {
		t.Errorf("expected name 'feed-bridge', got %q", svc.name)
	}
}

func TestFeedBridgeService_Serve(t *testing.T) {
	t.Run("delegates to the bridge until cancellation", func(t *testing.T) {
		bridge := newMockRunner()
		svc := NewFeedBridgeService(bridge)

		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Serve(ctx)
		}()

		select {
		case <-bridge.started:
		case <-time.After(time.Second):
			t.Fatal("bridge did not start")
		}

		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after context cancellation")
		}
	})

	t.Run("propagates subscription errors for restart", func(t *testing.T) {
		expectedErr := errors.New("subscribe failed")
		bridge := newMockRunner()
		bridge.runErr = expectedErr
		svc := NewFeedBridgeService(bridge)

		err := svc.Serve(context.Background())

		if !errors.Is(err, expectedErr) {
			t.Errorf("expected %v, got %v", expectedErr, err)
		}
	})
}

func TestFeedBridgeService_String(t *testing.T) {
	svc := NewFeedBridgeService(newMockRunner())

	if svc.String() != "feed-bridge" {
		t.Errorf("expected 'feed-bridge', got %q", svc.String())
	}
}
