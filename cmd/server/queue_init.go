// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/mentio/internal/config"
	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/queue"
)

// QueueComponents holds the mention-queue infrastructure for lifecycle
// management: the broker, the durable stream, the publisher the stream
// supervisor writes to, and the subscriber feeding the live WebSocket feed.
//
// The dispatch consumer is not held here. It runs under the supervisor
// tree so a crashed consumer is restarted without tearing the broker down.
type QueueComponents struct {
	server     *queue.EmbeddedServer
	natsConn   *natsgo.Conn
	streams    *queue.StreamManager
	publisher  *queue.Publisher
	subscriber *queue.Subscriber

	url string

	shutdownComplete chan struct{}
	mu               sync.Mutex
	running          bool
}

// initQueue initializes the mention queue: an embedded NATS server (or a
// connection to an external one), the durable JetStream stream, the
// publisher, and the live feed subscriber.
//
// Shutdown order of the returned components is the caller's job; call
// Shutdown after the supervisor tree has stopped so in-flight publishes
// and feed deliveries drain first.
func initQueue(cfg *config.Config) (*QueueComponents, error) {
	logging.Info().Msg("Initializing mention queue...")

	components := &QueueComponents{
		shutdownComplete: make(chan struct{}),
		running:          true,
	}

	var natsURL string

	// Step 1: Start embedded NATS server if enabled
	if cfg.Queue.Embedded {
		serverCfg := queue.ServerConfig{
			Host:              "127.0.0.1",
			Port:              4222,
			StoreDir:          cfg.Queue.StoreDir,
			JetStreamMaxMem:   cfg.Queue.MaxMemory,
			JetStreamMaxStore: cfg.Queue.MaxStore,
		}

		server, err := queue.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, err
		}
		components.server = server
		natsURL = server.ClientURL()
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	} else {
		natsURL = cfg.Queue.URL
		logging.Info().Str("url", natsURL).Msg("Using external NATS server")
	}
	components.url = natsURL

	// Step 2: Connect to NATS for stream administration
	nc, err := natsgo.Connect(natsURL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	components.natsConn = nc
	logging.Info().Msg("NATS connection established")

	// Step 3: Initialize JetStream and ensure the mention stream exists
	js, err := jetstream.New(nc)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := queue.DefaultStreamConfig()
	streamCfg.Name = cfg.Queue.StreamName
	streamCfg.Subjects = []string{cfg.Queue.Subject}
	streamCfg.DuplicateWindow = cfg.Queue.DedupWindow

	streams, err := queue.NewStreamManager(js, &streamCfg)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create stream manager: %w", err)
	}
	components.streams = streams

	stream, err := streams.EnsureStream(context.Background())
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("ensure stream exists: %w", err)
	}
	streamInfo := stream.CachedInfo()
	logging.Info().
		Str("name", streamInfo.Config.Name).
		Strs("subjects", streamInfo.Config.Subjects).
		Dur("duplicate_window", streamInfo.Config.Duplicates).
		Msg("JetStream stream ready")

	// Watermill logs route through zerolog via the slog bridge.
	wmLogger := watermill.NewSlogLogger(logging.NewSlogLogger())

	// Step 4: Create the mention publisher
	pubCfg := queue.DefaultPublisherConfig(natsURL)
	pubCfg.Subject = cfg.Queue.Subject
	publisher, err := queue.NewPublisher(pubCfg, wmLogger)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	components.publisher = publisher
	logging.Info().Msg("Mention publisher created")

	// Step 5: Create the live feed subscriber
	subCfg := queue.DefaultSubscriberConfig(natsURL)
	subCfg.StreamName = cfg.Queue.StreamName
	subscriber, err := queue.NewSubscriber(&subCfg, wmLogger)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create feed subscriber: %w", err)
	}
	components.subscriber = subscriber
	logging.Info().Str("durable", subCfg.DurableName).Msg("Feed subscriber created")

	logging.Info().Msg("Mention queue initialized successfully")
	return components, nil
}

// Shutdown gracefully stops all queue components.
//
// Shutdown order is critical for clean termination:
//  1. Close the feed subscriber (stops Watermill delivery)
//  2. Close the publisher (flushes pending publishes)
//  3. Close the NATS connection
//  4. Shutdown the embedded server last
func (c *QueueComponents) Shutdown(ctx context.Context) {
	if c == nil {
		return
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	logging.Info().Msg("Shutting down queue components...")

	c.shutdownSubscriber()
	c.shutdownPublisher()
	c.shutdownConnection(ctx)

	close(c.shutdownComplete)
	logging.Info().Msg("Queue shutdown complete")
}

// shutdownSubscriber closes the Watermill feed subscriber.
func (c *QueueComponents) shutdownSubscriber() {
	if c.subscriber == nil {
		return
	}
	if err := c.subscriber.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing feed subscriber")
	}
	logging.Info().Msg("Feed subscriber closed")
}

// shutdownPublisher closes the mention publisher.
func (c *QueueComponents) shutdownPublisher() {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing publisher")
	}
	logging.Info().Msg("Publisher closed")
}

// shutdownConnection closes the NATS connection and embedded server.
func (c *QueueComponents) shutdownConnection(ctx context.Context) {
	if c.natsConn != nil {
		c.natsConn.Close()
		logging.Info().Msg("NATS connection closed")
	}
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down NATS server")
		}
		logging.Info().Msg("Embedded NATS server stopped")
	}
}

// IsRunning returns whether queue components are active.
func (c *QueueComponents) IsRunning() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ClientURL returns the broker URL for additional consumers.
func (c *QueueComponents) ClientURL() string {
	return c.url
}

// Publisher returns the mention publisher the stream supervisor writes to.
func (c *QueueComponents) Publisher() *queue.Publisher {
	return c.publisher
}

// Subscriber returns the live feed subscriber.
func (c *QueueComponents) Subscriber() *queue.Subscriber {
	return c.subscriber
}
