// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package store

import (
	"errors"
	"os"
	"testing"
	"time"
)

// newTestStore creates a store backed by a temporary directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "mentio_store_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	st, err := Open(tmpDir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return st
}

func TestStoreBasicOperations(t *testing.T) {
	st := newTestStore(t)

	t.Run("Put and Get", func(t *testing.T) {
		if err := st.Put("access_token", "tok-abc", 0); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := st.Get("access_token")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "tok-abc" {
			t.Errorf("Get = %q, want %q", got, "tok-abc")
		}
	})

	t.Run("Get missing key", func(t *testing.T) {
		_, err := st.Get("no-such-key")
		if !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("Put overwrites", func(t *testing.T) {
		if err := st.Put("k", "first", 0); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := st.Put("k", "second", 0); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := st.Get("k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "second" {
			t.Errorf("Get = %q, want %q", got, "second")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := st.Put("doomed", "v", 0); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := st.Delete("doomed"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := st.Get("doomed"); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
		}
	})

	t.Run("Delete missing key is not an error", func(t *testing.T) {
		if err := st.Delete("never-existed"); err != nil {
			t.Errorf("Delete of missing key failed: %v", err)
		}
	})

	t.Run("Empty key rejected", func(t *testing.T) {
		if err := st.Put("", "v", 0); err == nil {
			t.Error("expected error for empty key")
		}
		if _, err := st.Get(""); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound for empty key, got %v", err)
		}
	})
}

func TestStoreExpiry(t *testing.T) {
	st := newTestStore(t)

	t.Run("expired entry is hidden from Get", func(t *testing.T) {
		if err := st.Put("oauth_state", "nonce", 30*time.Millisecond); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		// Visible before expiry
		if _, err := st.Get("oauth_state"); err != nil {
			t.Fatalf("Get before expiry failed: %v", err)
		}

		time.Sleep(60 * time.Millisecond)

		if _, err := st.Get("oauth_state"); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound after expiry, got %v", err)
		}
	})

	t.Run("entry without expiry never expires", func(t *testing.T) {
		if err := st.Put("refresh_token", "rt", 0); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		time.Sleep(60 * time.Millisecond)

		if _, err := st.Get("refresh_token"); err != nil {
			t.Errorf("entry without expiry vanished: %v", err)
		}
	})
}

func TestStoreSweepExpired(t *testing.T) {
	st := newTestStore(t)

	// Two entries that expire quickly, one durable, one long-lived
	if err := st.Put("tweet:1", "1", 30*time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put("tweet:2", "1", 30*time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put("access_token", "tok", 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put("oauth_state", "s", time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	swept, err := st.SweepExpired()
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if swept != 2 {
		t.Errorf("SweepExpired removed %d entries, want 2", swept)
	}

	// Survivors intact
	if _, err := st.Get("access_token"); err != nil {
		t.Errorf("durable entry swept: %v", err)
	}
	if _, err := st.Get("oauth_state"); err != nil {
		t.Errorf("unexpired entry swept: %v", err)
	}

	// Sweep is idempotent
	swept, err = st.SweepExpired()
	if err != nil {
		t.Fatalf("second SweepExpired failed: %v", err)
	}
	if swept != 0 {
		t.Errorf("second sweep removed %d entries, want 0", swept)
	}
}

func TestStoreCount(t *testing.T) {
	st := newTestStore(t)

	if err := st.Put("a", "1", 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put("b", "2", 30*time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	count, err := st.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Count = %d, want 2", count)
	}

	time.Sleep(60 * time.Millisecond)

	count, err = st.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Count after expiry = %d, want 1", count)
	}
}

func TestStoreMilliHelpers(t *testing.T) {
	st := newTestStore(t)

	ms := time.Now().UnixMilli()
	if err := st.PutMilli("lastTweetTime", ms); err != nil {
		t.Fatalf("PutMilli failed: %v", err)
	}

	got, err := st.GetMilli("lastTweetTime")
	if err != nil {
		t.Fatalf("GetMilli failed: %v", err)
	}
	if got != ms {
		t.Errorf("GetMilli = %d, want %d", got, ms)
	}

	if _, err := st.GetMilli("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}

	// Non-numeric value surfaces a parse error, not a silent zero
	if err := st.Put("bad", "not-a-number", 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := st.GetMilli("bad"); err == nil {
		t.Error("expected parse error for non-numeric value")
	}
}

func TestStoreHas(t *testing.T) {
	st := newTestStore(t)

	if st.Has("access_token") {
		t.Error("Has on missing key = true, want false")
	}

	if err := st.Put("access_token", "tok", 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !st.Has("access_token") {
		t.Error("Has on present key = false, want true")
	}

	if err := st.Put("oauth_verifier", "v", 30*time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if st.Has("oauth_verifier") {
		t.Error("Has on expired key = true, want false")
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "mentio_store_reopen")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	st, err := Open(tmpDir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := st.Put("refresh_token", "rt-123", 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	st2, err := Open(tmpDir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer st2.Close()

	got, err := st2.Get("refresh_token")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got != "rt-123" {
		t.Errorf("Get = %q, want %q", got, "rt-123")
	}
}
