// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package store provides the durable key/value credential store backing all
// persisted mutable state: OAuth handshake secrets, tokens, the last event
// timestamp, and dedup markers. Entries may carry an expiry; reads never
// return expired values, and SweepExpired reclaims them lazily.
//
// The store is transactional per key only. Callers must not assume
// cross-key atomicity: a token value and its expiry are two key writes.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/metrics"
)

// ErrKeyNotFound is returned by Get when a key is absent or its expiry has
// passed. Expired and missing are indistinguishable to callers.
var ErrKeyNotFound = errors.New("store: key not found")

// expiryGrace is added to the badger entry TTL beyond the logical expiry.
// Visibility is always decided by the record expiry; the badger TTL is a
// backstop so entries a sweep never reaches still get reclaimed.
const expiryGrace = time.Hour

// record is the stored representation of one entry.
type record struct {
	Value string `json:"v"`
	// ExpiresAt is the expiry in Unix milliseconds; zero means no expiry.
	ExpiresAt int64 `json:"exp,omitempty"`
}

// expired reports whether the record's expiry has passed at t.
func (r *record) expired(t time.Time) bool {
	return r.ExpiresAt != 0 && t.UnixMilli() >= r.ExpiresAt
}

// Store is a BadgerDB-backed key/value store with per-key expiry.
// All state the bot persists flows through one Store instance.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at the given directory path.
//
//	st, err := store.Open("/data/mentio/store")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Suppress BadgerDB internal logs
	// Value log file size appropriate for small credential/marker data
	opts.ValueLogFileSize = 16 << 20 // 16MB (smaller than default 1GB)
	// Sync writes for durability; losing a token write is operator pain
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB creates a Store from an existing BadgerDB connection.
// Useful when sharing a BadgerDB instance, e.g. in tests.
func NewFromDB(db *badger.DB) *Store {
	return &Store{db: db}
}

// Put writes a value under key, overwriting atomically. A positive ttl sets
// the entry's expiry; zero or negative ttl stores the entry without expiry.
func (s *Store) Put(key, value string, ttl time.Duration) error {
	if key == "" {
		return errors.New("store: key cannot be empty")
	}

	rec := record{Value: value}
	if ttl > 0 {
		rec.ExpiresAt = time.Now().Add(ttl).UnixMilli()
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl + expiryGrace)
		}
		return txn.SetEntry(entry)
	})
}

// Get returns the value stored under key. Returns ErrKeyNotFound when the
// key is absent or its expiry has passed; an expired entry is removed
// best-effort on the way out.
func (s *Store) Get(key string) (string, error) {
	if key == "" {
		return "", ErrKeyNotFound
	}

	var rec record

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("get %q: %w", key, err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return "", err
	}

	if rec.expired(time.Now()) {
		//nolint:errcheck // Best-effort cleanup, the entry is already expired
		s.Delete(key)
		return "", ErrKeyNotFound
	}

	return rec.Value, nil
}

// Has reports whether an unexpired value exists under key.
func (s *Store) Has(key string) bool {
	_, err := s.Get(key)
	return err == nil
}

// Delete removes the entry under key. Deleting a missing key is not an
// error.
func (s *Store) Delete(key string) error {
	if key == "" {
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil // Already deleted
		}
		return err
	})
}

// SweepExpired deletes every entry, of any kind, whose expiry has passed.
// Returns the number of entries removed. Corrupted entries are removed too.
func (s *Store) SweepExpired() (int, error) {
	var expiredKeys [][]byte
	now := time.Now()

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var rec record
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				// Corrupted entry - mark for deletion
				expiredKeys = append(expiredKeys, append([]byte{}, item.Key()...))
				continue
			}

			if rec.expired(now) {
				expiredKeys = append(expiredKeys, append([]byte{}, item.Key()...))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan for expired entries: %w", err)
	}

	count := 0
	for _, key := range expiredKeys {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err == nil {
			count++
		}
	}

	metrics.RecordSweep(count)
	return count, nil
}

// Count returns the number of unexpired entries.
func (s *Store) Count() (int, error) {
	count := 0
	now := time.Now()

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				continue
			}
			if !rec.expired(now) {
				count++
			}
		}
		return nil
	})

	return count, err
}

// PutMilli stores a Unix-millisecond timestamp under key without expiry.
func (s *Store) PutMilli(key string, ms int64) error {
	return s.Put(key, strconv.FormatInt(ms, 10), 0)
}

// GetMilli returns the Unix-millisecond timestamp stored under key.
// Returns ErrKeyNotFound when absent.
func (s *Store) GetMilli(key string) (int64, error) {
	val, err := s.Get(key)
	if err != nil {
		return 0, err
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q as milliseconds: %w", key, err)
	}
	return ms, nil
}

// RunGCLoop periodically sweeps expired entries and runs BadgerDB value-log
// garbage collection until ctx is canceled. Intended to run as a supervised
// routine.
func (s *Store) RunGCLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			swept, err := s.SweepExpired()
			if err != nil {
				logging.Error().Err(err).Msg("Store sweep failed")
			} else if swept > 0 {
				logging.Debug().Int("swept", swept).Msg("Store sweep removed expired entries")
			}
			// ErrNoRewrite is normal when there is nothing to reclaim
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Debug().Err(err).Msg("Badger value log GC skipped")
			}
		}
	}
}

// Close closes the underlying BadgerDB connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying BadgerDB connection for advanced operations.
func (s *Store) DB() *badger.DB {
	return s.db
}
