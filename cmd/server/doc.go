// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

/*
Package main is the entry point for the Mentio server application.

Mentio is a self-hosted mention bot. It holds a filtered-stream
connection against the upstream social API, deduplicates the mentions it
receives, queues each novel mention durably, and replies to it. A small
HTTP API exposes OAuth login, liveness status, and a live mention feed
over WebSocket.

# Application Architecture

The server implements a layered architecture with Suture v4 process
supervision:

	RootSupervisor ("mentio")
	├── DataSupervisor ("data-layer")
	│   └── Store GC (BadgerDB value-log garbage collection)
	├── StreamSupervisor ("stream-layer")
	│   ├── Stream Reader (filtered-stream connection loop)
	│   └── Stream Watchdog (external staleness checker)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── Feed Hub (WebSocket client registry)
	│   ├── Feed Bridge (queue to WebSocket fan-out)
	│   └── Reply Dispatch (durable consumer posting replies)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (Chi router with middleware stack)

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with JSON/console output modes
 3. Store: BadgerDB credential and state store
 4. Queue: embedded NATS JetStream broker, durable stream, publisher
 5. OAuth: token manager with PKCE handshake and serialized refresh
 6. Stream: supervisor with proactive reconnects plus external watchdog
 7. Dispatch: durable consumer turning queued mentions into replies
 8. Supervisor Tree: Suture v4 process supervision
 9. HTTP Server: Chi router with middleware stack

# Configuration

Configuration is loaded via Koanf v2 with layered sources (highest
priority wins):

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	# Server
	HTTP_PORT=8425               # HTTP API port
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console

	# OAuth application credentials (required for replies)
	OAUTH_CLIENT_ID=<client-id>
	OAUTH_CLIENT_SECRET=<client-secret>
	OAUTH_REDIRECT_URI=https://bot.example.com/auth/callback

	# Optional statically provisioned refresh token
	FALLBACK_REFRESH_TOKEN=<refresh-token>

	# Reply content
	REPLY_TEXT="Thanks for the mention!"

	# Durable state
	STORE_PATH=/data/mentio/store
	NATS_STORE_DIR=/data/mentio/jetstream

	# External broker instead of the embedded one
	NATS_EMBEDDED=false
	NATS_URL=nats://broker:4222

See config.yaml.example for the complete configuration reference.

# Credential Bootstrap

Mentio cannot reply until it holds an OAuth credential. There are two
ways to provide one:

	# Interactive: visit /auth/login and complete the provider consent
	open http://localhost:8425/auth/login

	# Static: provision a refresh token, exchanged on first use
	export FALLBACK_REFRESH_TOKEN=<refresh-token>

Mentions that arrive before a credential exists are parked in the queue
and replied to once authorization completes.

# Signal Handling

The server handles graceful shutdown on SIGINT and SIGTERM:

 1. Stops accepting new HTTP connections
 2. Closes the stream connection and stops the watchdog
 3. Stops the dispatch consumer (unposted replies stay queued)
 4. Disconnects WebSocket feed clients
 5. Shuts down the queue broker and closes the store
 6. Reports any services that failed to stop

# Usage Examples

Development against a local mock provider:

	export STREAM_URL=http://localhost:9000/2/tweets/search/stream
	export RULES_URL=http://localhost:9000/2/tweets/search/stream/rules
	export REPLY_URL=http://localhost:9000/2/tweets
	export STORE_PATH=./data/store NATS_STORE_DIR=./data/jetstream
	go run ./cmd/server

Production:

	export OAUTH_CLIENT_ID=xxx OAUTH_CLIENT_SECRET=xxx
	export OAUTH_REDIRECT_URI=https://bot.example.com/auth/callback
	export REPLY_TEXT="Thanks for the mention!"
	./mentio

Docker:

	docker run -d \
	  -e OAUTH_CLIENT_ID=xxx \
	  -e OAUTH_CLIENT_SECRET=xxx \
	  -e OAUTH_REDIRECT_URI=https://bot.example.com/auth/callback \
	  -v mentio-data:/data/mentio \
	  -p 8425:8425 \
	  ghcr.io/tomtom215/mentio

# See Also

  - internal/config: Configuration management
  - internal/supervisor: Process supervision
  - internal/stream: Filtered-stream connection lifecycle
  - internal/dispatch: Reply posting
  - internal/api: HTTP handlers and routing
*/
package main
