// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package services

import (
	"context"
)

// StreamRunner interface matches the stream supervisor's Run method.
//
// Satisfied by *stream.Supervisor from internal/stream/supervisor.go.
// Run blocks until the context is canceled; connection retries and the
// unconditional redial cycle happen inside it.
type StreamRunner interface {
	Run(ctx context.Context) error
}

// StreamService wraps the filtered-stream reader as a supervised service.
//
// The reader's Run method already implements the suture.Service pattern,
// so this wrapper simply delegates to it and provides a name for logging.
// Suture acts as the outer safety net: the reader handles transport
// failures itself, and a restart here only happens if Run crashes.
//
// Example usage:
//
//	streamSup := stream.NewSupervisor(client, tokens, dd, kv, sink)
//	svc := services.NewStreamService(streamSup)
//	tree.AddStreamService(svc)
type StreamService struct {
	runner StreamRunner
	name   string
}

// NewStreamService creates a new stream reader service wrapper.
func NewStreamService(runner StreamRunner) *StreamService {
	return &StreamService{
		runner: runner,
		name:   "stream-reader",
	}
}

// Serve implements suture.Service.
func (s *StreamService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

// String implements fmt.Stringer for logging.
func (s *StreamService) String() string {
	return s.name
}

// StalenessChecker interface matches the watchdog checker's Run method.
//
// Satisfied by *stream.Checker from internal/stream/watchdog.go.
type StalenessChecker interface {
	Run(ctx context.Context) error
}

// WatchdogService wraps the staleness checker as a supervised service.
//
// The checker is deliberately supervised as a sibling of the stream
// reader rather than embedded in it: it exists to restart the reader
// from the outside when the reader wedges without crashing. Putting it
// in the same service would take the watchdog down with its patient.
//
// Example usage:
//
//	checker := stream.NewChecker(streamSup, &cfg.Watchdog)
//	svc := services.NewWatchdogService(checker)
//	tree.AddStreamService(svc)
type WatchdogService struct {
	checker StalenessChecker
	name    string
}

// NewWatchdogService creates a new staleness checker service wrapper.
func NewWatchdogService(checker StalenessChecker) *WatchdogService {
	return &WatchdogService{
		checker: checker,
		name:    "stream-watchdog",
	}
}

// Serve implements suture.Service.
func (w *WatchdogService) Serve(ctx context.Context) error {
	return w.checker.Run(ctx)
}

// String implements fmt.Stringer for logging.
func (w *WatchdogService) String() string {
	return w.name
}
