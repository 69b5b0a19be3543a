// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/mentio/internal/metrics"
)

// Publisher wraps a Watermill NATS publisher with reconnection handling.
// Novel mentions flow through it from the stream supervisor into the
// durable JetStream stream.
type Publisher struct {
	publisher message.Publisher
	subject   string
	mu        sync.RWMutex
	closed    bool
	logger    watermill.LoggerAdapter
}

// NewPublisher creates a Watermill NATS publisher for the mention stream.
// The publisher is configured for JetStream with message ID tracking so
// the broker deduplicates republished tweets inside the duplicates window.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	// NATS connection options with reconnection handling
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // Stream is pre-created by StreamManager
			TrackMsgId:    true,  // Enable broker-side deduplication
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return &Publisher{
		publisher: pub,
		subject:   cfg.Subject,
		logger:    logger,
	}, nil
}

// Publish sends a message to the specified subject.
// The message UUID is used as Nats-Msg-Id for deduplication if not already set.
func (p *Publisher) Publish(ctx context.Context, subject string, msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	err := p.publisher.Publish(subject, msg)
	if err != nil {
		metrics.QueuePublishFailures.Inc()
		return err
	}

	metrics.QueueMessagesPublished.Inc()
	return nil
}

// PublishMention serializes and publishes a mention to the configured subject.
// The tweet ID becomes the message identity, so a tweet replayed across a
// stream reconnect is dropped by the broker even when the local dedup store
// misses it.
func (p *Publisher) PublishMention(ctx context.Context, m *Message) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("serialize mention: %w", err)
	}

	msg := message.NewMessage(m.Tweet.ID, data)
	msg.Metadata.Set("author_id", m.Tweet.AuthorID)

	return p.Publish(ctx, p.subject, msg)
}

// Close gracefully shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.publisher.Close()
}
