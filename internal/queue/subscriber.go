// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package queue

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// Subscriber wraps a Watermill JetStream subscriber. It serves fan-out
// paths like the live WebSocket feed, where delivery is observed rather
// than settled with per-message retry decisions.
type Subscriber struct {
	subscriber message.Subscriber
	config     SubscriberConfig
	logger     watermill.LoggerAdapter
}

// NewSubscriber creates a durable JetStream subscriber bound to the
// mention stream.
func NewSubscriber(cfg *SubscriberConfig, logger watermill.LoggerAdapter) (*Subscriber, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Subscriber reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(cfg.MaxDeliver),
		natsgo.MaxAckPending(cfg.MaxAckPending),
		natsgo.AckWait(cfg.AckWaitTimeout),
		// The live feed shows what happens from now on; missed mentions
		// are not replayed to it.
		natsgo.DeliverNew(),
		// Bind to the stream pre-created by StreamManager rather than
		// auto-provisioning one per subscriber.
		natsgo.BindStream(cfg.StreamName),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	return &Subscriber{
		subscriber: sub,
		config:     *cfg,
		logger:     logger,
	}, nil
}

// Subscribe returns a channel of messages for the given subject.
// The channel is closed when the context is canceled or the subscriber is closed.
func (s *Subscriber) Subscribe(ctx context.Context, subject string) (<-chan *message.Message, error) {
	return s.subscriber.Subscribe(ctx, subject)
}

// Close gracefully shuts down the subscriber.
func (s *Subscriber) Close() error {
	return s.subscriber.Close()
}

// MentionHandler delivers decoded mentions to a callback.
type MentionHandler struct {
	subscriber *Subscriber
	subject    string
	handler    func(ctx context.Context, m *Message) error
	logger     watermill.LoggerAdapter
}

// NewMentionHandler creates a handler for processing mentions from the
// given subject.
func (s *Subscriber) NewMentionHandler(subject string) *MentionHandler {
	return &MentionHandler{
		subscriber: s,
		subject:    subject,
		logger:     s.logger,
	}
}

// Handle sets the mention processing function. A returned error nacks the
// message.
func (h *MentionHandler) Handle(fn func(ctx context.Context, m *Message) error) *MentionHandler {
	h.handler = fn
	return h
}

// Run starts processing mentions until context cancellation.
// Messages are acked on successful processing, nacked on error.
func (h *MentionHandler) Run(ctx context.Context) error {
	messages, err := h.subscriber.Subscribe(ctx, h.subject)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", h.subject, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := h.processMessage(ctx, msg); err != nil {
				h.logger.Error("Mention processing failed", err, watermill.LogFields{
					"message_uuid": msg.UUID,
					"subject":      h.subject,
				})
			}
		}
	}
}

func (h *MentionHandler) processMessage(ctx context.Context, msg *message.Message) error {
	if h.handler == nil {
		msg.Ack()
		return nil
	}

	m, err := UnmarshalMessage(msg.Payload)
	if err != nil {
		// Malformed payloads are acked; they never become decodable.
		msg.Ack()
		return fmt.Errorf("unmarshal mention: %w", err)
	}

	if err := h.handler(ctx, m); err != nil {
		msg.Nack()
		return err
	}

	msg.Ack()
	return nil
}
