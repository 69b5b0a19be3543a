// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package queue

import (
	"context"
	"fmt"
	"sync"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/metrics"
)

// Handler processes one dequeued mention and returns the settlement
// decision. Handlers must be safe for concurrent use.
type Handler func(ctx context.Context, msg *Message) Decision

// Consumer delivers queued mentions to a handler through a durable
// JetStream consumer. Redelivery follows the handler's decisions, so a
// mention survives process restarts until it is acknowledged or the
// delivery budget is exhausted.
type Consumer struct {
	cfg     ConsumerConfig
	handler Handler

	mu      sync.Mutex
	nc      *natsgo.Conn
	cctx    jetstream.ConsumeContext
	baseCtx context.Context
	running bool
}

// NewConsumer creates a dispatch consumer. The handler is required.
func NewConsumer(cfg ConsumerConfig, handler Handler) (*Consumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler required")
	}

	return &Consumer{
		cfg:     cfg,
		handler: handler,
	}, nil
}

// Start connects to NATS, creates or updates the durable consumer, and
// begins delivering messages. It returns immediately; delivery happens on
// background goroutines until Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	nc, err := natsgo.Connect(c.cfg.URL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(c.cfg.MaxReconnects),
		natsgo.ReconnectWait(c.cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("Dispatch consumer disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("Dispatch consumer reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("create JetStream context: %w", err)
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.Durable,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    c.cfg.MaxDeliver,
		MaxAckPending: c.cfg.MaxAckPending,
		BackOff:       c.cfg.BackOff,
		// DeliverAll so mentions queued while the dispatcher was down are
		// still replied to after a restart.
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("create consumer %s: %w", c.cfg.Durable, err)
	}

	// Deliveries can begin the moment Consume returns, so the base context
	// must be in place first.
	c.baseCtx = ctx

	cctx, err := cons.Consume(c.deliver)
	if err != nil {
		nc.Close()
		return fmt.Errorf("start consuming: %w", err)
	}

	c.nc = nc
	c.cctx = cctx
	c.running = true

	logging.Info().
		Str("stream", c.cfg.Stream).
		Str("durable", c.cfg.Durable).
		Dur("ack_wait", c.cfg.AckWait).
		Int("max_deliver", c.cfg.MaxDeliver).
		Msg("Dispatch consumer started")
	return nil
}

// Run starts the consumer and blocks until the context is canceled, then
// stops it. This is the entry point used under the supervision tree.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	c.Stop()
	return ctx.Err()
}

// Stop halts delivery and closes the NATS connection. It is idempotent.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false

	c.cctx.Stop()
	c.nc.Close()
	c.nc = nil
	c.cctx = nil

	logging.Info().Str("durable", c.cfg.Durable).Msg("Dispatch consumer stopped")
}

// Running reports whether the consumer is delivering messages.
func (c *Consumer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// deliver decodes one delivery and settles it by the handler's decision.
func (c *Consumer) deliver(msg jetstream.Msg) {
	metrics.QueueMessagesConsumed.Inc()

	m, err := UnmarshalMessage(msg.Data())
	if err != nil {
		logging.Warn().Err(err).Str("subject", msg.Subject()).Msg("Failed to parse queued mention")
		// A malformed payload never becomes processable, so redelivery
		// would only burn the delivery budget.
		c.settle(msg, Ack())
		return
	}

	// Bound each handler invocation by the ack wait. Work that outruns it
	// is redelivered by the broker regardless of what the handler returns.
	ctx, cancel := context.WithTimeout(c.baseCtx, c.cfg.AckWait)
	defer cancel()

	decision := c.handler(ctx, m)

	if !decision.Acked() {
		if meta, err := msg.Metadata(); err == nil && int(meta.NumDelivered) >= c.cfg.MaxDeliver {
			logging.Warn().
				Str("tweet_id", m.Tweet.ID).
				Uint64("deliveries", meta.NumDelivered).
				Msg("Mention exhausted its delivery budget, dropping")
		}
	}

	c.settle(msg, decision)
}

// settle applies a decision to a delivered message.
func (c *Consumer) settle(msg jetstream.Msg, d Decision) {
	var err error
	switch {
	case d.Acked():
		err = msg.Ack()
	case d.Delay() > 0:
		err = msg.NakWithDelay(d.Delay())
	default:
		err = msg.Nak()
	}

	if err != nil {
		logging.Warn().
			Err(err).
			Str("decision", d.String()).
			Str("subject", msg.Subject()).
			Msg("Failed to settle delivery")
	}
}
