// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package main

import (
	"context"
	"testing"
	"time"
)

// TestQueueComponents_IsRunning tests the IsRunning method.
func TestQueueComponents_IsRunning(t *testing.T) {
	t.Run("nil components", func(t *testing.T) {
		var c *QueueComponents
		if c.IsRunning() {
			t.Error("IsRunning() should return false for nil components")
		}
	})

	t.Run("not running", func(t *testing.T) {
		c := &QueueComponents{}
		if c.IsRunning() {
			t.Error("IsRunning() should return false when not running")
		}
	})

	t.Run("running", func(t *testing.T) {
		c := &QueueComponents{running: true}
		if !c.IsRunning() {
			t.Error("IsRunning() should return true when running")
		}
	})
}

// TestQueueComponents_Shutdown tests the Shutdown method.
func TestQueueComponents_Shutdown(t *testing.T) {
	t.Run("nil components", func(t *testing.T) {
		var c *QueueComponents
		// Should not panic
		c.Shutdown(context.Background())
	})

	t.Run("not running", func(t *testing.T) {
		c := &QueueComponents{}
		// Should not panic
		c.Shutdown(context.Background())
	})

	t.Run("shutdown completes", func(t *testing.T) {
		c := &QueueComponents{
			running:          true,
			shutdownComplete: make(chan struct{}),
		}

		done := make(chan struct{})
		go func() {
			c.Shutdown(context.Background())
			close(done)
		}()

		select {
		case <-done:
			// Good - shutdown completed
		case <-time.After(time.Second):
			t.Error("Shutdown blocked for too long")
		}

		if c.IsRunning() {
			t.Error("Should not be running after shutdown")
		}
	})

	t.Run("double shutdown is safe", func(t *testing.T) {
		c := &QueueComponents{
			running:          true,
			shutdownComplete: make(chan struct{}),
		}

		c.Shutdown(context.Background())
		// Second call must not close shutdownComplete again
		c.Shutdown(context.Background())
	})
}

// TestQueueComponents_Accessors tests the nil-safe accessor behavior.
func TestQueueComponents_Accessors(t *testing.T) {
	c := &QueueComponents{url: "nats://127.0.0.1:4222"}

	if c.ClientURL() != "nats://127.0.0.1:4222" {
		t.Errorf("ClientURL() = %q, want configured URL", c.ClientURL())
	}
	if c.Publisher() != nil {
		t.Error("Publisher() should be nil before initialization")
	}
	if c.Subscriber() != nil {
		t.Error("Subscriber() should be nil before initialization")
	}
}
