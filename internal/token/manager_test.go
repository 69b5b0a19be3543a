// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package token

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/tomtom215/mentio/internal/store"
)

// newTestManager creates a manager backed by a temporary store.
func newTestManager(t *testing.T, mutate func(*Config)) (*Manager, *store.Store) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "mentio_token_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	st, err := store.Open(tmpDir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURI:  "https://registered.example.com/auth/callback",
		Scopes:       []string{"tweet.read", "tweet.write", "offline.access"},
		AuthorizeURL: "https://upstream.example.com/i/oauth2/authorize",
		TokenURL:     "https://upstream.example.com/2/oauth2/token",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	return NewManager(cfg, st), st
}

func TestBuildAuthorizationRequest(t *testing.T) {
	m, st := newTestManager(t, nil)

	req, err := m.BuildAuthorizationRequest("https://bot.example.com/")
	if err != nil {
		t.Fatalf("BuildAuthorizationRequest failed: %v", err)
	}

	parsed, err := url.Parse(req.AuthorizeURL)
	if err != nil {
		t.Fatalf("Failed to parse authorize URL: %v", err)
	}
	q := parsed.Query()

	t.Run("standard parameters", func(t *testing.T) {
		if got := q.Get("response_type"); got != "code" {
			t.Errorf("response_type = %q, want %q", got, "code")
		}
		if got := q.Get("client_id"); got != "test-client" {
			t.Errorf("client_id = %q, want %q", got, "test-client")
		}
		if got := q.Get("scope"); got != "tweet.read tweet.write offline.access" {
			t.Errorf("scope = %q, want space-joined scopes", got)
		}
	})

	t.Run("redirect derived from origin", func(t *testing.T) {
		want := "https://bot.example.com/auth/callback"
		if got := q.Get("redirect_uri"); got != want {
			t.Errorf("redirect_uri = %q, want %q", got, want)
		}
	})

	t.Run("plain challenge equals verifier", func(t *testing.T) {
		if got := q.Get("code_challenge_method"); got != "plain" {
			t.Errorf("code_challenge_method = %q, want %q", got, "plain")
		}
		if got := q.Get("code_challenge"); got != req.Verifier {
			t.Errorf("code_challenge = %q, want the verifier %q", got, req.Verifier)
		}
	})

	t.Run("secrets persisted for the callback", func(t *testing.T) {
		if got := q.Get("state"); got != req.State {
			t.Errorf("state param = %q, want %q", got, req.State)
		}
		storedState, err := st.Get("oauth_state")
		if err != nil {
			t.Fatalf("Stored state not found: %v", err)
		}
		if storedState != req.State {
			t.Errorf("Stored state = %q, want %q", storedState, req.State)
		}
		storedVerifier, err := st.Get("oauth_verifier")
		if err != nil {
			t.Fatalf("Stored verifier not found: %v", err)
		}
		if storedVerifier != req.Verifier {
			t.Errorf("Stored verifier = %q, want %q", storedVerifier, req.Verifier)
		}
	})

	t.Run("secrets are unique per request", func(t *testing.T) {
		second, err := m.BuildAuthorizationRequest("https://bot.example.com")
		if err != nil {
			t.Fatalf("Second BuildAuthorizationRequest failed: %v", err)
		}
		if second.State == req.State {
			t.Error("Expected a fresh state per authorization request")
		}
		if second.Verifier == req.Verifier {
			t.Error("Expected a fresh verifier per authorization request")
		}
	})

	t.Run("configured redirect used without origin", func(t *testing.T) {
		noOrigin, err := m.BuildAuthorizationRequest("")
		if err != nil {
			t.Fatalf("BuildAuthorizationRequest failed: %v", err)
		}
		parsed, err := url.Parse(noOrigin.AuthorizeURL)
		if err != nil {
			t.Fatalf("Failed to parse authorize URL: %v", err)
		}
		want := "https://registered.example.com/auth/callback"
		if got := parsed.Query().Get("redirect_uri"); got != want {
			t.Errorf("redirect_uri = %q, want configured %q", got, want)
		}
	})
}

func TestCompleteHandshakeStateMismatch(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong state fails regardless of code validity", func(t *testing.T) {
		hits := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		if _, err := m.BuildAuthorizationRequest(""); err != nil {
			t.Fatalf("BuildAuthorizationRequest failed: %v", err)
		}

		_, err := m.CompleteHandshake(ctx, "valid-code", "not-the-stored-state", "")
		if !errors.Is(err, ErrHandshakeMismatch) {
			t.Fatalf("CompleteHandshake error = %v, want ErrHandshakeMismatch", err)
		}
		if hits != 0 {
			t.Errorf("Token endpoint hit %d times on mismatch, want 0", hits)
		}
		if st.Has("access_token") {
			t.Error("No token should be persisted after a state mismatch")
		}
	})

	t.Run("no pending handshake fails", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		_, err := m.CompleteHandshake(ctx, "code", "any-state", "")
		if !errors.Is(err, ErrHandshakeMismatch) {
			t.Fatalf("CompleteHandshake error = %v, want ErrHandshakeMismatch", err)
		}
	})

	t.Run("empty presented state fails", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		if _, err := m.BuildAuthorizationRequest(""); err != nil {
			t.Fatalf("BuildAuthorizationRequest failed: %v", err)
		}
		_, err := m.CompleteHandshake(ctx, "code", "", "")
		if !errors.Is(err, ErrHandshakeMismatch) {
			t.Fatalf("CompleteHandshake error = %v, want ErrHandshakeMismatch", err)
		}
	})
}

func TestCompleteHandshakeExchange(t *testing.T) {
	ctx := context.Background()

	t.Run("successful exchange persists the token pair", func(t *testing.T) {
		var gotForm url.Values
		var gotUser, gotPass string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("Token request method = %s, want POST", r.Method)
			}
			gotUser, gotPass, _ = r.BasicAuth()
			if err := r.ParseForm(); err != nil {
				t.Errorf("Failed to parse token request form: %v", err)
			}
			gotForm = r.PostForm
			w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		authReq, err := m.BuildAuthorizationRequest("https://bot.example.com")
		if err != nil {
			t.Fatalf("BuildAuthorizationRequest failed: %v", err)
		}

		before := time.Now()
		tok, err := m.CompleteHandshake(ctx, "auth-code-1", authReq.State, "https://bot.example.com")
		if err != nil {
			t.Fatalf("CompleteHandshake failed: %v", err)
		}

		if gotUser != "test-client" || gotPass != "test-secret" {
			t.Errorf("Basic auth = %q:%q, want client credentials", gotUser, gotPass)
		}
		if got := gotForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q, want authorization_code", got)
		}
		if got := gotForm.Get("code"); got != "auth-code-1" {
			t.Errorf("code = %q, want auth-code-1", got)
		}
		if got := gotForm.Get("code_verifier"); got != authReq.Verifier {
			t.Errorf("code_verifier = %q, want the stored verifier", got)
		}
		if got := gotForm.Get("redirect_uri"); got != "https://bot.example.com/auth/callback" {
			t.Errorf("redirect_uri = %q, want the origin-derived callback", got)
		}

		if tok.AccessToken != "at-1" {
			t.Errorf("AccessToken = %q, want at-1", tok.AccessToken)
		}
		wantExpiry := before.Add(7200 * time.Second)
		if tok.ExpiresAt.Before(wantExpiry.Add(-5*time.Second)) || tok.ExpiresAt.After(wantExpiry.Add(5*time.Second)) {
			t.Errorf("ExpiresAt = %v, want about %v", tok.ExpiresAt, wantExpiry)
		}

		stored, err := st.Get("access_token")
		if err != nil || stored != "at-1" {
			t.Errorf("Stored access token = %q (err %v), want at-1", stored, err)
		}
		storedRefresh, err := st.Get("refresh_token")
		if err != nil || storedRefresh != "rt-1" {
			t.Errorf("Stored refresh token = %q (err %v), want rt-1", storedRefresh, err)
		}
		if _, err := st.GetMilli("token_expires_at"); err != nil {
			t.Errorf("Expected a persisted expiry: %v", err)
		}
	})

	t.Run("handshake is single use", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		authReq, err := m.BuildAuthorizationRequest("")
		if err != nil {
			t.Fatalf("BuildAuthorizationRequest failed: %v", err)
		}

		if _, err := m.CompleteHandshake(ctx, "code", authReq.State, ""); err != nil {
			t.Fatalf("First CompleteHandshake failed: %v", err)
		}
		if st.Has("oauth_state") || st.Has("oauth_verifier") {
			t.Error("Handshake secrets should be consumed after completion")
		}

		_, err = m.CompleteHandshake(ctx, "code", authReq.State, "")
		if !errors.Is(err, ErrHandshakeMismatch) {
			t.Fatalf("Replayed CompleteHandshake error = %v, want ErrHandshakeMismatch", err)
		}
	})

	t.Run("non-success status fails the exchange", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_client"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		authReq, err := m.BuildAuthorizationRequest("")
		if err != nil {
			t.Fatalf("BuildAuthorizationRequest failed: %v", err)
		}

		_, err = m.CompleteHandshake(ctx, "code", authReq.State, "")
		if !errors.Is(err, ErrTokenExchangeFailed) {
			t.Fatalf("CompleteHandshake error = %v, want ErrTokenExchangeFailed", err)
		}
		if st.Has("access_token") {
			t.Error("No token should be persisted after a failed exchange")
		}
	})
}

func TestGetValidTokenSkew(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

	// seed stores an access token expiring at the given instant.
	seed := func(t *testing.T, st *store.Store, expiresAt time.Time) {
		t.Helper()
		if err := st.Put("access_token", "old-access", 0); err != nil {
			t.Fatalf("Failed to seed access token: %v", err)
		}
		if err := st.PutMilli("token_expires_at", expiresAt.UnixMilli()); err != nil {
			t.Fatalf("Failed to seed expiry: %v", err)
		}
	}

	t.Run("fresh token returned without refresh", func(t *testing.T) {
		hits := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.Write([]byte(`{"access_token":"new-access","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		m.now = func() time.Time { return base }
		seed(t, st, base.Add(time.Hour))

		tok, err := m.GetValidToken(ctx)
		if err != nil {
			t.Fatalf("GetValidToken failed: %v", err)
		}
		if tok.AccessToken != "old-access" {
			t.Errorf("AccessToken = %q, want the cached old-access", tok.AccessToken)
		}
		if hits != 0 {
			t.Errorf("Token endpoint hit %d times for a fresh token, want 0", hits)
		}
	})

	t.Run("refresh triggered exactly at the skew boundary", func(t *testing.T) {
		hits := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.Write([]byte(`{"access_token":"new-access","refresh_token":"rt-2","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		m.now = func() time.Time { return base }
		// now == expires_at - skew: already too close to trust.
		seed(t, st, base.Add(refreshSkew))
		if err := st.Put("refresh_token", "rt-1", 0); err != nil {
			t.Fatalf("Failed to seed refresh token: %v", err)
		}

		tok, err := m.GetValidToken(ctx)
		if err != nil {
			t.Fatalf("GetValidToken failed: %v", err)
		}
		if tok.AccessToken != "new-access" {
			t.Errorf("AccessToken = %q, want the refreshed new-access", tok.AccessToken)
		}
		if hits != 1 {
			t.Errorf("Token endpoint hit %d times, want exactly 1 refresh", hits)
		}
	})

	t.Run("no refresh one millisecond before the boundary", func(t *testing.T) {
		hits := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.Write([]byte(`{"access_token":"new-access","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		m.now = func() time.Time { return base }
		seed(t, st, base.Add(refreshSkew+time.Millisecond))

		tok, err := m.GetValidToken(ctx)
		if err != nil {
			t.Fatalf("GetValidToken failed: %v", err)
		}
		if tok.AccessToken != "old-access" {
			t.Errorf("AccessToken = %q, want the cached old-access", tok.AccessToken)
		}
		if hits != 0 {
			t.Errorf("Token endpoint hit %d times inside the fresh window, want 0", hits)
		}
	})
}

func TestGetValidTokenRefreshSources(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

	expire := func(t *testing.T, st *store.Store) {
		t.Helper()
		if err := st.Put("access_token", "stale-access", 0); err != nil {
			t.Fatalf("Failed to seed access token: %v", err)
		}
		if err := st.PutMilli("token_expires_at", base.Add(-time.Hour).UnixMilli()); err != nil {
			t.Fatalf("Failed to seed expiry: %v", err)
		}
	}

	t.Run("stored refresh token preferred over fallback", func(t *testing.T) {
		gotRefresh := ""
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Errorf("Failed to parse refresh form: %v", err)
			}
			if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
				t.Errorf("grant_type = %q, want refresh_token", got)
			}
			gotRefresh = r.PostForm.Get("refresh_token")
			w.Write([]byte(`{"access_token":"new-access","refresh_token":"rt-2","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) {
			cfg.TokenURL = srv.URL
			cfg.FallbackRefreshToken = "fallback-rt"
		})
		m.now = func() time.Time { return base }
		expire(t, st)
		if err := st.Put("refresh_token", "stored-rt", 0); err != nil {
			t.Fatalf("Failed to seed refresh token: %v", err)
		}

		if _, err := m.GetValidToken(ctx); err != nil {
			t.Fatalf("GetValidToken failed: %v", err)
		}
		if gotRefresh != "stored-rt" {
			t.Errorf("Refresh used %q, want the stored token", gotRefresh)
		}
	})

	t.Run("fallback used when store holds none", func(t *testing.T) {
		gotRefresh := ""
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Errorf("Failed to parse refresh form: %v", err)
			}
			gotRefresh = r.PostForm.Get("refresh_token")
			w.Write([]byte(`{"access_token":"new-access","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) {
			cfg.TokenURL = srv.URL
			cfg.FallbackRefreshToken = "fallback-rt"
		})
		m.now = func() time.Time { return base }
		expire(t, st)

		if _, err := m.GetValidToken(ctx); err != nil {
			t.Fatalf("GetValidToken failed: %v", err)
		}
		if gotRefresh != "fallback-rt" {
			t.Errorf("Refresh used %q, want the fallback token", gotRefresh)
		}
	})

	t.Run("absent when no refresh source exists", func(t *testing.T) {
		hits := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		m.now = func() time.Time { return base }
		expire(t, st)

		_, err := m.GetValidToken(ctx)
		if !errors.Is(err, ErrCredentialUnavailable) {
			t.Fatalf("GetValidToken error = %v, want ErrCredentialUnavailable", err)
		}
		if hits != 0 {
			t.Errorf("Token endpoint hit %d times with no refresh source, want 0", hits)
		}
	})

	t.Run("refresh rejection surfaces as credential outage", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		m.now = func() time.Time { return base }
		expire(t, st)
		if err := st.Put("refresh_token", "revoked-rt", 0); err != nil {
			t.Fatalf("Failed to seed refresh token: %v", err)
		}

		_, err := m.GetValidToken(ctx)
		if !errors.Is(err, ErrCredentialUnavailable) {
			t.Fatalf("GetValidToken error = %v, want ErrCredentialUnavailable", err)
		}
	})

	t.Run("rotated refresh token replaces the stored one", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"access_token":"new-access","refresh_token":"rt-rotated","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		m.now = func() time.Time { return base }
		expire(t, st)
		if err := st.Put("refresh_token", "rt-old", 0); err != nil {
			t.Fatalf("Failed to seed refresh token: %v", err)
		}

		if _, err := m.GetValidToken(ctx); err != nil {
			t.Fatalf("GetValidToken failed: %v", err)
		}
		got, err := st.Get("refresh_token")
		if err != nil || got != "rt-rotated" {
			t.Errorf("Stored refresh token = %q (err %v), want rt-rotated", got, err)
		}
	})

	t.Run("missing refresh token in response keeps the stored one", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"access_token":"new-access","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer srv.Close()

		m, st := newTestManager(t, func(cfg *Config) { cfg.TokenURL = srv.URL })
		m.now = func() time.Time { return base }
		expire(t, st)
		if err := st.Put("refresh_token", "rt-keep", 0); err != nil {
			t.Fatalf("Failed to seed refresh token: %v", err)
		}

		if _, err := m.GetValidToken(ctx); err != nil {
			t.Fatalf("GetValidToken failed: %v", err)
		}
		got, err := st.Get("refresh_token")
		if err != nil || got != "rt-keep" {
			t.Errorf("Stored refresh token = %q (err %v), want rt-keep", got, err)
		}
	})
}

func TestTokenPresenceProbes(t *testing.T) {
	m, st := newTestManager(t, nil)

	if m.HasAccessToken() {
		t.Error("HasAccessToken = true on an empty store")
	}
	if m.HasRefreshToken() {
		t.Error("HasRefreshToken = true on an empty store")
	}

	if err := st.Put("access_token", "at", 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put("refresh_token", "rt", 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if !m.HasAccessToken() {
		t.Error("HasAccessToken = false with a stored token")
	}
	if !m.HasRefreshToken() {
		t.Error("HasRefreshToken = false with a stored token")
	}
}
