// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package queue

import (
	"context"
	"testing"
	"time"
)

func TestDecision_Ack(t *testing.T) {
	d := Ack()

	if !d.Acked() {
		t.Error("Ack().Acked() = false, want true")
	}
	if d.Delay() != 0 {
		t.Errorf("Ack().Delay() = %v, want 0", d.Delay())
	}
	if d.String() != "ack" {
		t.Errorf("Ack().String() = %q, want ack", d.String())
	}
}

func TestDecision_Retry(t *testing.T) {
	d := Retry()

	if d.Acked() {
		t.Error("Retry().Acked() = true, want false")
	}
	if d.Delay() != 0 {
		t.Errorf("Retry().Delay() = %v, want 0", d.Delay())
	}
	if d.String() != "retry" {
		t.Errorf("Retry().String() = %q, want retry", d.String())
	}
}

func TestDecision_RetryAfter(t *testing.T) {
	d := RetryAfter(5 * time.Minute)

	if d.Acked() {
		t.Error("RetryAfter().Acked() = true, want false")
	}
	if d.Delay() != 5*time.Minute {
		t.Errorf("RetryAfter().Delay() = %v, want 5m", d.Delay())
	}
	if d.String() != "retry_delayed" {
		t.Errorf("RetryAfter().String() = %q, want retry_delayed", d.String())
	}
}

func TestDecision_Comparable(t *testing.T) {
	if Retry() != Retry() {
		t.Error("Expected identical retry decisions to compare equal")
	}
	if Ack() == Retry() {
		t.Error("Expected ack and retry to compare unequal")
	}
	if RetryAfter(time.Minute) == Retry() {
		t.Error("Expected delayed retry and plain retry to compare unequal")
	}
}

func TestNewConsumer_NilHandler(t *testing.T) {
	_, err := NewConsumer(DefaultConsumerConfig("nats://127.0.0.1:4222"), nil)
	if err == nil {
		t.Fatal("NewConsumer() should error on nil handler")
	}
}

func TestConsumer_StopBeforeStart(t *testing.T) {
	c, err := NewConsumer(DefaultConsumerConfig("nats://127.0.0.1:4222"), func(ctx context.Context, msg *Message) Decision {
		return Ack()
	})
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}

	// Stop before Start must be a no-op.
	c.Stop()
	c.Stop()

	if c.Running() {
		t.Error("Running() = true before Start")
	}
}
