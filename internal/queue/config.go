// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package queue

import "time"

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns production defaults for the embedded NATS server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/mentio/jetstream",
		JetStreamMaxMem:   256 << 20, // 256MB
		JetStreamMaxStore: 2 << 30,   // 2GB
	}
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL             string
	Subject         string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int
}

// DefaultPublisherConfig returns production defaults for the publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:             url,
		Subject:         "mentio.events",
		MaxReconnects:   -1, // Unlimited
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 * 1024 * 1024, // 8MB
	}
}

// ConsumerConfig holds durable consumer configuration for the dispatcher.
type ConsumerConfig struct {
	URL           string
	Stream        string
	Subject       string
	Durable       string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration

	// BackOff is the redelivery ladder applied to plain naks and ack
	// timeouts. NakWithDelay bypasses it. Must stay shorter than
	// MaxDeliver or the broker rejects the consumer.
	BackOff []time.Duration
}

// DefaultConsumerConfig returns production defaults for the dispatch consumer.
func DefaultConsumerConfig(url string) ConsumerConfig {
	return ConsumerConfig{
		URL:           url,
		Stream:        "MENTIO_EVENTS",
		Subject:       "mentio.events",
		Durable:       "mentio-dispatch",
		AckWait:       30 * time.Second,
		MaxDeliver:    10,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		BackOff: []time.Duration{
			5 * time.Second,
			15 * time.Second,
			30 * time.Second,
			time.Minute,
		},
	}
}

// SubscriberConfig holds Watermill subscriber configuration for fan-out
// paths such as the live feed.
type SubscriberConfig struct {
	URL              string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
	// StreamName is the JetStream stream to bind to. Binding avoids
	// AutoProvision racing the StreamManager over stream ownership.
	StreamName string
}

// DefaultSubscriberConfig returns production defaults for the live feed
// subscriber.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      "mentio-feed",
		QueueGroup:       "feed",
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       3,
		MaxAckPending:    100,
		CloseTimeout:     10 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		StreamName:       "MENTIO_EVENTS",
	}
}

// StreamConfig defines mention event stream settings.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns production stream configuration.
// The duplicates window must cover the proactive stream reconnect cadence
// so that broker-side Msg-Id deduplication absorbs reconnect replays.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "MENTIO_EVENTS",
		Subjects:        []string{"mentio.events"},
		MaxAge:          24 * time.Hour,
		MaxBytes:        1 << 30, // 1GB
		MaxMsgs:         -1,      // Unlimited
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}
