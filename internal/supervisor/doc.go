// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

/*
Package supervisor provides process supervision for Mentio using suture v4.

This package implements a hierarchical supervisor tree that manages the lifecycle
of all long-running services in the application. It provides Erlang/OTP-style
supervision with automatic restart, failure isolation, and graceful shutdown.

# Overview

The supervisor tree organizes services into four layers for failure isolation:

	RootSupervisor ("mentio")
	├── DataSupervisor ("data-layer")
	│   └── StoreGCService (BadgerDB value-log GC)
	├── StreamSupervisor ("stream-layer")
	│   ├── StreamService (filtered-stream reader)
	│   └── WatchdogService (external staleness checker)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── FeedHubService (WebSocket fan-out)
	│   ├── FeedBridgeService (queue-to-feed forwarder)
	│   └── DispatchService (reply dispatch consumer)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

This hierarchy ensures that:
  - A stream disconnect loop doesn't affect queued reply delivery
  - A feed hub crash doesn't break the stream reader
  - The HTTP API keeps answering status while other layers restart

# Key Features

Automatic Restart:
  - Crashed services are automatically restarted
  - Exponential backoff prevents restart storms
  - Configurable failure thresholds and decay rates

Failure Isolation:
  - Services are organized into logical groups
  - Child supervisor failures don't propagate upward
  - Each layer has independent failure counting

Graceful Shutdown:
  - Context cancellation triggers orderly shutdown
  - Configurable shutdown timeout per service
  - UnstoppedServiceReport for debugging hangs

Structured Logging:
  - Integration with slog for structured events
  - Logs service starts, stops, failures, and restarts
  - Event hooks via sutureslog adapter

# Usage Example

Basic setup in main.go:

	logger := logging.NewSlogLogger()
	config := supervisor.DefaultTreeConfig()

	tree, err := supervisor.NewSupervisorTree(logger, config)
	if err != nil {
	    log.Fatal(err)
	}

	tree.AddStreamService(services.NewStreamService(streamSup))
	tree.AddStreamService(services.NewWatchdogService(checker))
	tree.AddMessagingService(services.NewFeedHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	// Start the tree (blocks until context canceled)
	if err := tree.Serve(ctx); err != nil {
	    log.Printf("Supervisor stopped: %v", err)
	}

# Service Interface

All services must implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: Service stopped cleanly, will not be restarted
  - Return error: Service crashed, will be restarted
  - Context canceled: Shutdown requested, return promptly

# Two Restart Regimes

Restart behavior exists at two levels that should not be confused:

The stream reader manages its own reconnects internally (redial timer,
retry-after-failed-connect) and only leaves its Serve loop on context
cancellation, so suture rarely restarts it. Suture is the safety net for
the cases the reader cannot handle itself: a panic, or a bug that makes
Serve return an error.

The staleness checker is deliberately a sibling service rather than part
of the reader. If the reader wedges without crashing, the checker forces
a reconnect from outside; if the checker itself dies, suture restarts it.

# What Is NOT Supervised

BadgerDB itself is not supervised - it's an embedded library whose
connection lifecycle is owned by the store package. Only its periodic GC
loop runs as a service.

The NATS publisher inside the stream reader is likewise not a service;
reconnects are handled by the nats.go client and delivery durability by
JetStream acks.

# Debugging Shutdown Issues

If services don't stop within the timeout:

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    log.Printf("Service didn't stop: %v", svc)
	}

Common causes:
  - Goroutines not respecting context cancellation
  - Blocked network I/O without deadlines
  - Mutex deadlocks during shutdown

# See Also

  - internal/supervisor/services: Service wrappers
  - github.com/thejerf/suture/v4: Underlying library
*/
package supervisor
