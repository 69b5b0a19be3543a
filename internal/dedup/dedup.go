// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package dedup suppresses re-delivery of events already forwarded to the
// queue. The upstream stream redelivers events on reconnect, and the bot
// reconnects proactively every 25 seconds, so every event is expected to be
// seen more than once.
//
// Markers live in the shared credential store under the tweet: prefix with a
// fixed one-hour expiry. One hour safely exceeds any reconnect-induced
// overlap while bounding storage growth.
package dedup

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/store"
)

// markerPrefix namespaces dedup markers in the shared store.
const markerPrefix = "tweet:"

// markerTTL is the fixed lifetime of a dedup marker.
const markerTTL = time.Hour

// Store records event ids and answers whether an id was already seen.
type Store struct {
	kv *store.Store
}

// New creates a dedup store over the shared key/value store.
func New(kv *store.Store) *Store {
	return &Store{kv: kv}
}

// SeenBefore reports whether eventID was already recorded. If not, the id
// is recorded with a one-hour expiry and false is returned; a subsequent
// call within the hour returns true without re-recording (the original
// expiry stands).
//
// Each call first sweeps all globally expired store entries, of any kind.
// Sweep failures are logged, not returned; the dedup answer must not depend
// on garbage collection succeeding.
func (s *Store) SeenBefore(eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("dedup: event id cannot be empty")
	}

	if _, err := s.kv.SweepExpired(); err != nil {
		logging.Warn().Err(err).Msg("Dedup sweep failed")
	}

	key := markerPrefix + eventID

	_, err := s.kv.Get(key)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, store.ErrKeyNotFound) {
		return false, fmt.Errorf("dedup lookup %q: %w", eventID, err)
	}

	if err := s.kv.Put(key, "1", markerTTL); err != nil {
		return false, fmt.Errorf("dedup record %q: %w", eventID, err)
	}

	return false, nil
}
