// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package services

import (
	"context"
)

// MentionConsumer interface matches the dispatch consumer's Run method.
//
// Satisfied by *queue.Consumer from internal/queue/consumer.go. Run
// connects to NATS, delivers queued mentions to the reply handler, and
// blocks until the context is canceled.
type MentionConsumer interface {
	Run(ctx context.Context) error
}

// DispatchService wraps the reply dispatch consumer as a supervised service.
//
// The consumer's durable JetStream subscription means a restart here loses
// nothing: unacknowledged mentions are redelivered by the broker, so suture
// can restart the service freely after a crash.
//
// Example usage:
//
//	consumer, _ := queue.NewConsumer(cfg.Queue.Consumer(), dispatcher.Handle)
//	svc := services.NewDispatchService(consumer)
//	tree.AddMessagingService(svc)
type DispatchService struct {
	consumer MentionConsumer
	name     string
}

// NewDispatchService creates a new dispatch consumer service wrapper.
func NewDispatchService(consumer MentionConsumer) *DispatchService {
	return &DispatchService{
		consumer: consumer,
		name:     "reply-dispatch",
	}
}

// Serve implements suture.Service.
func (d *DispatchService) Serve(ctx context.Context) error {
	return d.consumer.Run(ctx)
}

// String implements fmt.Stringer for logging.
func (d *DispatchService) String() string {
	return d.name
}
