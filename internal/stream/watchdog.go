// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package stream

import (
	"context"
	"time"

	"github.com/tomtom215/mentio/internal/config"
	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/metrics"
)

// Target is the supervisor surface the liveness checker drives.
type Target interface {
	Status() Status
	Start() error
}

// Checker periodically inspects stream liveness and forces a restart
// when the supervisor is not running or the last event is too old. The
// restart policy lives here, outside the supervisor, so the supervisor
// itself never judges its own staleness.
//
// A supervisor stopped by an operator is restarted too, at the next
// check. Disabling the stream for longer than one check interval means
// stopping the checker as well.
type Checker struct {
	target     Target
	interval   time.Duration
	staleAfter time.Duration
}

// NewChecker creates a liveness checker for the given supervisor.
func NewChecker(target Target, cfg *config.WatchdogConfig) *Checker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}

	return &Checker{
		target:     target,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// Run inspects liveness on a fixed interval until ctx is canceled.
func (c *Checker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.check()
		}
	}
}

// check applies the restart policy once.
func (c *Checker) check() {
	st := c.target.Status()

	// Staleness is only judged once an event has ever been seen; a
	// restart cannot manufacture events on a quiet stream that has no
	// baseline yet.
	stale := !st.LastEventTime.IsZero() && st.TimeSinceLastEvent > c.staleAfter
	if st.Running && !stale {
		return
	}

	reason := "stale"
	if !st.Running {
		reason = "not_running"
	}

	logging.Warn().
		Bool("running", st.Running).
		Str("state", string(st.State)).
		Dur("since_last_event", st.TimeSinceLastEvent).
		Msg("Stream liveness check failed, forcing restart")
	metrics.RecordStreamRestart(reason)

	if err := c.target.Start(); err != nil {
		logging.Error().Err(err).Msg("Forced stream restart failed")
	}
}
