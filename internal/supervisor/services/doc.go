// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

/*
Package services provides suture.Service wrappers for Mentio's long-running
components.

Each wrapper adapts a component's native lifecycle to suture's single
Serve(ctx) contract and defines a small local interface instead of importing
the component's package directly, so the wrappers stay free of import cycles
and trivially mockable.

Two adaptation patterns appear here:

Run-loop components (stream reader, staleness checker, feed hub, feed
bridge, dispatch consumer, store GC) already block until their context is
canceled; the wrapper just delegates and contributes a name for suture's
logs.

The HTTP server uses the blocking ListenAndServe / Shutdown pair; its
wrapper translates context cancellation into a bounded graceful Shutdown
call.

Services return ctx.Err() on orderly shutdown and a real error on crash;
suture restarts only the latter.

Wiring happens in cmd/server:

	tree.AddDataService(services.NewStoreGCService(kv, time.Hour))
	tree.AddStreamService(services.NewStreamService(streamSup))
	tree.AddStreamService(services.NewWatchdogService(checker))
	tree.AddMessagingService(services.NewFeedHubService(hub))
	tree.AddMessagingService(services.NewFeedBridgeService(bridge))
	tree.AddMessagingService(services.NewDispatchService(consumer))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
*/
package services
