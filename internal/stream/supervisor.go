// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package stream owns the long-lived read loop against the upstream
// filtered-stream endpoint.
//
// A single Supervisor holds at most one live connection at a time. Every
// (re)start first cancels the previous connection, then arms a 25-second
// timer that redials unconditionally: upstream connections of this kind
// are time-bounded by the provider, so the loop reconnects on a fixed
// cadence instead of trying to detect silent stalls. Failed connects and
// dead streams redial sooner, after five seconds.
//
// The read loop consumes line-delimited JSON. Blank lines are keep-alive
// heartbeats, lines without an event payload are control messages, and
// malformed lines are skipped; none of them terminate the loop. A valid
// event updates the last-event timestamp, passes through the dedup
// store, and is enqueued for the reply dispatcher.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mentio/internal/dedup"
	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/metrics"
	"github.com/tomtom215/mentio/internal/queue"
	"github.com/tomtom215/mentio/internal/store"
	"github.com/tomtom215/mentio/internal/token"
	"github.com/tomtom215/mentio/internal/upstream"
)

// ErrNotRunning indicates a start was requested before the supervisor
// was given a run context.
var ErrNotRunning = errors.New("stream supervisor is not running")

const (
	// restartInterval is the proactive redial cadence. Every connection
	// is torn down and reopened this often regardless of health.
	restartInterval = 25 * time.Second

	// connectRetryDelay is the redial delay after a failed connect or a
	// dead stream.
	connectRetryDelay = 5 * time.Second

	// publishTimeout bounds the enqueue of a single mention. The broker
	// is local, so anything slower than this is already failing.
	publishTimeout = 5 * time.Second

	// keyLastEventTime is the persisted-state key holding the arrival
	// time of the most recent event, in Unix milliseconds.
	keyLastEventTime = "lastTweetTime"

	// maxLineBytes bounds a single stream line. Matches the queue's
	// maximum payload size.
	maxLineBytes = 1 << 20
)

// State is the supervisor's connection state.
type State string

// Supervisor states.
const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateDisconnected State = "disconnected"
	StateErroring     State = "erroring"
	StateStopped      State = "stopped"
)

// TokenSource yields a valid access token for opening the stream.
type TokenSource interface {
	GetValidToken(ctx context.Context) (*token.Token, error)
}

// MentionSink receives novel mentions for dispatch.
type MentionSink interface {
	PublishMention(ctx context.Context, msg *queue.Message) error
}

// Status is the supervisor's liveness view, consumed by the status API
// and the external staleness checker.
type Status struct {
	Running            bool
	State              State
	LastEventTime      time.Time
	TimeSinceLastEvent time.Duration
}

// Supervisor manages the filtered-stream connection lifecycle.
type Supervisor struct {
	client upstream.ClientInterface
	tokens TokenSource
	dedup  *dedup.Store
	kv     *store.Store
	sink   MentionSink

	// redialEvery and retryDelay default to restartInterval and
	// connectRetryDelay; tests shorten them.
	redialEvery time.Duration
	retryDelay  time.Duration

	mu        sync.Mutex
	baseCtx   context.Context
	state     State
	cancel    context.CancelFunc
	watchdog  *time.Timer
	gen       uint64
	lastEvent time.Time
	wg        sync.WaitGroup
}

// NewSupervisor creates a stream supervisor in the Idle state. The
// last-event timestamp is rehydrated from the store so staleness
// judgments survive a process restart.
func NewSupervisor(client upstream.ClientInterface, tokens TokenSource, dd *dedup.Store, kv *store.Store, sink MentionSink) *Supervisor {
	s := &Supervisor{
		client:      client,
		tokens:      tokens,
		dedup:       dd,
		kv:          kv,
		sink:        sink,
		state:       StateIdle,
		redialEvery: restartInterval,
		retryDelay:  connectRetryDelay,
	}

	if ms, err := kv.GetMilli(keyLastEventTime); err == nil && ms > 0 {
		s.lastEvent = time.UnixMilli(ms).UTC()
	}

	return s
}

// Run starts the supervisor and blocks until ctx is canceled. It is the
// entry point used under the supervision tree; ctx becomes the parent of
// every connection the supervisor opens.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	err := s.startLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// Start opens a new stream connection, tearing down any existing one
// first. At most one read loop is live at any time. The connection is
// established asynchronously; dial failures are retried internally, so
// Start only errors when the supervisor has no run context yet.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Supervisor) startLocked() error {
	if s.baseCtx == nil {
		return ErrNotRunning
	}
	if err := s.baseCtx.Err(); err != nil {
		return err
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	s.state = StateConnecting
	s.gen++
	gen := s.gen

	// The provider caps connection lifetime, so every connection redials
	// on a fixed cadence even when healthy.
	s.armWatchdogLocked(s.redialEvery, "watchdog")

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.connection(ctx, gen)
	return nil
}

// Stop cancels the active connection and disarms the watchdog. An
// explicit stop is not a connection error: no retry is scheduled, and
// the in-flight read is aborted promptly. Safe to call repeatedly.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	wasStopped := s.state == StateStopped
	s.state = StateStopped
	s.gen++
	s.mu.Unlock()

	s.wg.Wait()

	if !wasStopped {
		metrics.StreamConnected.Set(0)
		logging.Info().Msg("Stream supervisor stopped")
	}
}

// Status reports the supervisor's current liveness view.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:       s.state == StateConnecting || s.state == StateStreaming,
		State:         s.state,
		LastEventTime: s.lastEvent,
	}
	if !s.lastEvent.IsZero() {
		st.TimeSinceLastEvent = time.Since(s.lastEvent)
	}
	return st
}

// restart is the watchdog timer callback. A stopped supervisor stays
// stopped; anything else goes through a full start.
func (s *Supervisor) restart(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped || s.baseCtx == nil || s.baseCtx.Err() != nil {
		return
	}

	metrics.RecordStreamRestart(reason)
	logging.Debug().Str("reason", reason).Msg("Watchdog restarting stream")

	if err := s.startLocked(); err != nil {
		logging.Error().Err(err).Msg("Watchdog restart failed")
	}
}

// armWatchdogLocked replaces the pending watchdog timer. Exactly one
// timer is armed at any time, so retries never accumulate.
func (s *Supervisor) armWatchdogLocked(d time.Duration, reason string) {
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	s.watchdog = time.AfterFunc(d, func() { s.restart(reason) })
}

// retryIfCurrent records the terminal state of connection gen and arms a
// short-delay redial. A superseded or stopped connection changes nothing;
// its replacement already owns the schedule.
func (s *Supervisor) retryIfCurrent(gen uint64, st State, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.state == StateStopped {
		return
	}
	s.state = st
	s.armWatchdogLocked(s.retryDelay, reason)
}

// transitionIfCurrent moves connection gen to st, reporting whether the
// connection still owns the supervisor.
func (s *Supervisor) transitionIfCurrent(gen uint64, st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.state == StateStopped {
		return false
	}
	s.state = st
	return true
}

// connection dials the stream and consumes it until the connection dies
// or is canceled. Runs in its own goroutine, one per start.
func (s *Supervisor) connection(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	tok, err := s.tokens.GetValidToken(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Warn().Err(err).Msg("Stream connect blocked, no usable credential")
		metrics.RecordStreamConnect(false)
		s.retryIfCurrent(gen, StateIdle, "connect_retry")
		return
	}

	body, err := s.client.OpenStream(ctx, tok.AccessToken)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Warn().Err(err).Msg("Stream connect failed")
		metrics.RecordStreamConnect(false)
		s.retryIfCurrent(gen, StateIdle, "connect_retry")
		return
	}
	defer func() { _ = body.Close() }()

	if !s.transitionIfCurrent(gen, StateStreaming) {
		return
	}
	metrics.RecordStreamConnect(true)
	logging.Info().Msg("Stream connected")

	err = s.consume(ctx, body)
	if ctx.Err() != nil {
		// Explicit stop or proactive redial aborted the read. Not an
		// error; whoever canceled owns the next step.
		return
	}

	metrics.StreamConnected.Set(0)
	if err != nil {
		logging.Warn().Err(err).Msg("Stream read failed")
		s.retryIfCurrent(gen, StateErroring, "transport_error")
		return
	}
	logging.Info().Msg("Stream ended")
	s.retryIfCurrent(gen, StateDisconnected, "transport_error")
}

// consume reads the stream body line by line until it ends. Partial
// lines are buffered across read chunks; a line is only processed once
// its delimiter has arrived.
func (s *Supervisor) consume(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		s.processLine(ctx, scanner.Bytes())
	}
	return scanner.Err()
}

// streamEnvelope is one non-blank line of the feed: an event with
// optional expansions, or a control message carrying no event.
type streamEnvelope struct {
	Data     *queue.Tweet    `json:"data"`
	Includes *queue.Includes `json:"includes"`
}

// processLine classifies one stream line. Nothing here is fatal to the
// read loop.
func (s *Supervisor) processLine(ctx context.Context, line []byte) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		// Keep-alive heartbeat.
		metrics.RecordLineSkipped("heartbeat")
		return
	}

	var envelope streamEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		logging.Warn().Err(err).Int("line_bytes", len(trimmed)).Msg("Skipping malformed stream line")
		metrics.RecordLineSkipped("malformed")
		return
	}

	if envelope.Data == nil || envelope.Data.ID == "" {
		logging.Debug().RawJSON("line", trimmed).Msg("Skipping non-event stream line")
		metrics.RecordLineSkipped("no_data")
		return
	}

	s.handleEvent(ctx, envelope.Data, envelope.Includes)
}

// handleEvent records the event arrival, filters duplicates, and
// enqueues novel mentions.
func (s *Supervisor) handleEvent(_ context.Context, tweet *queue.Tweet, includes *queue.Includes) {
	now := time.Now().UTC()

	s.mu.Lock()
	s.lastEvent = now
	base := s.baseCtx
	s.mu.Unlock()

	metrics.RecordEventSeen(now)
	if err := s.kv.PutMilli(keyLastEventTime, now.UnixMilli()); err != nil {
		logging.Warn().Err(err).Msg("Failed to persist last event time")
	}

	seen, err := s.dedup.SeenBefore(tweet.ID)
	if err != nil {
		logging.Error().Err(err).Str("tweet_id", tweet.ID).Msg("Dedup check failed, dropping event")
		return
	}
	if seen {
		metrics.StreamEventsDeduplicated.Inc()
		return
	}

	// The enqueue runs against the supervisor's base context, not the
	// connection's: a proactive redial firing mid-publish must not abort
	// an already-deduplicated mention.
	if base == nil {
		base = context.Background()
	}
	pubCtx, cancel := context.WithTimeout(base, publishTimeout)
	defer cancel()

	msg := queue.NewMessage(*tweet, includes)
	if err := s.sink.PublishMention(pubCtx, msg); err != nil {
		logging.Error().Err(err).Str("tweet_id", tweet.ID).Msg("Failed to enqueue mention")
		return
	}

	metrics.StreamEventsForwarded.Inc()
	logging.Info().
		Str("tweet_id", tweet.ID).
		Str("author", msg.AuthorUsername()).
		Msg("Mention enqueued")
}
