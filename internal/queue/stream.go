// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamContext defines the subset of jetstream.JetStream used by
// StreamManager. This interface allows testing with mock implementations.
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	DeleteStream(ctx context.Context, name string) error
}

// StreamManager handles JetStream stream lifecycle. It ensures the mention
// stream exists with the correct configuration before the publisher and
// consumer start, guaranteeing durable delivery from ingestion to dispatch.
type StreamManager struct {
	js     JetStreamContext
	config StreamConfig
}

// NewStreamManager creates a stream manager with the given configuration.
// Returns an error if the JetStream context or config is nil.
func NewStreamManager(js JetStreamContext, cfg *StreamConfig) (*StreamManager, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("stream config required")
	}

	return &StreamManager{
		js:     js,
		config: *cfg,
	}, nil
}

// EnsureStream creates or updates the stream with the configured settings.
// This operation is idempotent.
//
// The stream is configured with:
//   - File storage for durability across restarts
//   - LimitsPolicy retention (FIFO when limits reached)
//   - A duplicates window sized to absorb reconnect replays by Msg-Id
//
// Returns the stream handle or an error if creation/update fails.
func (m *StreamManager) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name:       m.config.Name,
		Subjects:   m.config.Subjects,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     m.config.MaxAge,
		MaxBytes:   m.config.MaxBytes,
		MaxMsgs:    m.config.MaxMsgs,
		Duplicates: m.config.DuplicateWindow,
		Replicas:   m.config.Replicas,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
	}

	// Try to get existing stream
	_, err := m.js.Stream(ctx, m.config.Name)
	if err == nil {
		// Stream exists, update configuration
		stream, err := m.js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", m.config.Name, err)
		}
		return stream, nil
	}

	// Stream doesn't exist, create it
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err := m.js.CreateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", m.config.Name, err)
		}
		return stream, nil
	}

	// Unexpected error checking stream existence
	return nil, fmt.Errorf("check stream %s: %w", m.config.Name, err)
}

// GetStreamInfo retrieves current stream state and configuration.
// Returns an error if the stream doesn't exist.
func (m *StreamManager) GetStreamInfo(ctx context.Context) (*jetstream.StreamInfo, error) {
	stream, err := m.js.Stream(ctx, m.config.Name)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", m.config.Name, err)
	}
	return stream.Info(ctx)
}

// IsHealthy checks if the stream exists and is accessible.
func (m *StreamManager) IsHealthy(ctx context.Context) bool {
	_, err := m.js.Stream(ctx, m.config.Name)
	return err == nil
}

// Config returns the current stream configuration.
func (m *StreamManager) Config() StreamConfig {
	return m.config
}
