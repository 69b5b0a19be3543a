// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/mentio/internal/api"
	"github.com/tomtom215/mentio/internal/config"
	"github.com/tomtom215/mentio/internal/dedup"
	"github.com/tomtom215/mentio/internal/dispatch"
	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/queue"
	"github.com/tomtom215/mentio/internal/store"
	"github.com/tomtom215/mentio/internal/stream"
	"github.com/tomtom215/mentio/internal/supervisor"
	"github.com/tomtom215/mentio/internal/supervisor/services"
	"github.com/tomtom215/mentio/internal/token"
	"github.com/tomtom215/mentio/internal/upstream"
	ws "github.com/tomtom215/mentio/internal/websocket"
)

// version is stamped at build time via -ldflags "-X main.version=v1.2.3".
var version = "dev"

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("version", version).Msg("Starting Mentio with supervisor tree")

	logging.Info().
		Str("stream_url", cfg.Upstream.StreamURL).
		Str("store_path", cfg.Store.Path).
		Bool("queue_embedded", cfg.Queue.Embedded).
		Bool("fallback_refresh_token", cfg.OAuth.FallbackRefreshToken != "").
		Msg("Configuration loaded")

	// Open the credential and state store
	kv, err := store.Open(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Msg("Store opened successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the mention queue: broker, durable stream, publisher,
	// and live feed subscriber
	qc, err := initQueue(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize mention queue")
	}

	// OAuth token manager backed by the store
	tokens := token.NewManager(token.Config{
		ClientID:             cfg.OAuth.ClientID,
		ClientSecret:         cfg.OAuth.ClientSecret,
		RedirectURI:          cfg.OAuth.RedirectURI,
		Scopes:               cfg.OAuth.Scopes,
		AuthorizeURL:         cfg.OAuth.AuthorizeURL,
		TokenURL:             cfg.OAuth.TokenURL,
		FallbackRefreshToken: cfg.OAuth.FallbackRefreshToken,
	}, kv)
	if tokens.HasRefreshToken() {
		logging.Info().Msg("Stored refresh token found, replies enabled after first refresh")
	} else if cfg.OAuth.FallbackRefreshToken != "" {
		logging.Info().Msg("Using fallback refresh token until interactive authorization")
	} else {
		logging.Warn().Msg("No credential available; complete /auth/login before replies can be posted")
	}

	// Upstream API client shared by the stream reader, the dispatcher,
	// and the rule-listing endpoint
	client := upstream.NewClient(&cfg.Upstream)

	// Dedup store layered over the KV store
	dd := dedup.New(kv)

	// Feed hub for live mention WebSocket broadcasts
	hub := ws.NewHub()

	// Stream supervisor reading the filtered stream into the queue
	streamSup := stream.NewSupervisor(client, tokens, dd, kv, qc.Publisher())

	// External staleness checker driving forced restarts
	checker := stream.NewChecker(streamSup, &cfg.Watchdog)
	logging.Info().
		Dur("interval", cfg.Watchdog.Interval).
		Dur("stale_after", cfg.Watchdog.StaleAfter).
		Msg("Stream watchdog configured")

	// Reply dispatcher consuming the durable stream
	dispatcher := dispatch.NewDispatcher(tokens, client, cfg.Reply.Text)

	consumerCfg := queue.DefaultConsumerConfig(qc.ClientURL())
	consumerCfg.Stream = cfg.Queue.StreamName
	consumerCfg.Subject = cfg.Queue.Subject
	consumerCfg.Durable = cfg.Queue.Durable
	consumerCfg.AckWait = cfg.Queue.AckWait
	consumerCfg.MaxDeliver = cfg.Queue.MaxDeliver
	consumer, err := queue.NewConsumer(consumerCfg, dispatcher.Handle)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create dispatch consumer")
	}

	// Bridge forwarding queued mentions to connected feed clients
	bridge := ws.NewBridge(hub, qc.Subscriber(), cfg.Queue.Subject)

	handler := api.NewHandler(cfg, tokens, client, streamSup, kv, hub, version)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Create structured logger for supervisor using our slog adapter
	// This bridges zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	// Create supervisor tree
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	// Data layer services
	tree.AddDataService(services.NewStoreGCService(kv, cfg.Store.GCInterval))
	logging.Info().Dur("interval", cfg.Store.GCInterval).Msg("Store GC added to supervisor tree")

	// Stream layer services. The watchdog is a sibling of the reader so
	// it can force restarts from outside the reader's own lifecycle.
	tree.AddStreamService(services.NewStreamService(streamSup))
	tree.AddStreamService(services.NewWatchdogService(checker))
	logging.Info().Msg("Stream reader and watchdog added to supervisor tree")

	// Messaging layer services
	tree.AddMessagingService(services.NewFeedHubService(hub))
	tree.AddMessagingService(services.NewFeedBridgeService(bridge))
	tree.AddMessagingService(services.NewDispatchService(consumer))
	logging.Info().Msg("Feed hub, feed bridge, and reply dispatch added to supervisor tree")

	// API layer services
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	// Queue infrastructure goes down after the services that use it
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	qc.Shutdown(shutdownCtx)
	shutdownCancel()

	logging.Info().Msg("Application stopped gracefully")
}
