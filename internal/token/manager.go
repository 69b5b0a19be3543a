// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package token owns the OAuth2 credential lifecycle: authorize-URL
// construction, the authorization-code handshake, and proactive refresh.
//
// OAuth flow:
//  1. BuildAuthorizationRequest generates a state nonce and a PKCE
//     verifier, persists both, and returns the upstream authorize URL.
//  2. The user authorizes and the provider redirects back with a code.
//  3. CompleteHandshake validates the presented state, consumes the
//     stored handshake, and exchanges the code for a token pair.
//  4. GetValidToken returns the stored access token, refreshing it
//     before expiry so callers never hold a token about to lapse.
//
// Tokens are persisted immediately on every successful exchange or
// refresh; at most one valid token pair exists at any time.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/metrics"
	"github.com/tomtom215/mentio/internal/store"
)

// Token lifecycle errors.
var (
	// ErrHandshakeMismatch indicates the state presented at callback time
	// does not match the stored handshake (or no handshake is pending).
	ErrHandshakeMismatch = errors.New("authorization state mismatch")

	// ErrTokenExchangeFailed indicates the authorization-code exchange
	// was rejected by the token endpoint.
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrTokenRefreshFailed indicates a refresh-grant request was
	// rejected by the token endpoint. It is logged inside the manager
	// and surfaces to callers as ErrCredentialUnavailable.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrCredentialUnavailable indicates no usable access token exists
	// and none could be obtained by refresh. Callers are expected to
	// back off and retry rather than fail permanently.
	ErrCredentialUnavailable = errors.New("no usable access token")
)

// Store keys owned by the manager.
const (
	keyState        = "oauth_state"
	keyVerifier     = "oauth_verifier"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiresAt    = "token_expires_at"
)

const (
	// handshakeTTL bounds how long an unconsumed authorize handshake
	// stays valid. A callback after this window fails the state check.
	handshakeTTL = 10 * time.Minute

	// refreshSkew is subtracted from the recorded expiry when judging
	// token freshness, so a token is refreshed before the upstream
	// actually rejects it.
	refreshSkew = 5 * time.Minute

	// callbackPath is appended to an origin URL to form the redirect
	// URI presented at both the authorize and exchange steps.
	callbackPath = "/auth/callback"
)

// Config holds the OAuth client settings for the upstream provider.
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURI is the registered callback URL, used when no origin
	// is supplied at authorize time.
	RedirectURI string

	// Scopes to request, joined with spaces in the authorize URL.
	Scopes []string

	// AuthorizeURL is the provider's authorization endpoint.
	AuthorizeURL string

	// TokenURL is the provider's token endpoint, used for both the
	// code exchange and the refresh grant.
	TokenURL string

	// FallbackRefreshToken is a statically provisioned refresh token
	// consulted when the store holds none.
	FallbackRefreshToken string

	// HTTPClient for token-endpoint requests (optional, uses a default
	// 30s-timeout client if nil).
	HTTPClient *http.Client
}

// Token is an OAuth2 token pair with its absolute expiry.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

// AuthorizationRequest is the output of BuildAuthorizationRequest: the
// URL to redirect the user to, plus the secrets backing the handshake.
type AuthorizationRequest struct {
	AuthorizeURL string
	State        string
	Verifier     string
}

// Manager coordinates the OAuth2 credential lifecycle against a single
// durable store. Refresh is serialized behind a mutex so the stream
// path and the queue-consumer path never race a double refresh.
type Manager struct {
	cfg    Config
	kv     *store.Store
	client *http.Client

	mu  sync.Mutex
	now func() time.Time
}

// NewManager creates a token manager backed by the given store.
func NewManager(cfg Config, kv *store.Store) *Manager {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		cfg:    cfg,
		kv:     kv,
		client: client,
		now:    time.Now,
	}
}

// BuildAuthorizationRequest generates a fresh state nonce and PKCE
// verifier, persists both with the handshake TTL, and returns the fully
// formed authorize URL along with the generated secrets.
//
// The code challenge is the verifier itself (the RFC 7636 "plain"
// transform). The exchange step sends the same verifier back, so the
// challenge method here must stay in lockstep with what
// CompleteHandshake submits.
//
// When originURL is non-empty the redirect URI is derived from it by
// appending the callback path; otherwise the configured redirect URI is
// used as-is.
func (m *Manager) BuildAuthorizationRequest(originURL string) (*AuthorizationRequest, error) {
	state, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	verifier, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("generate code verifier: %w", err)
	}

	if err := m.kv.Put(keyState, state, handshakeTTL); err != nil {
		return nil, fmt.Errorf("store state: %w", err)
	}
	if err := m.kv.Put(keyVerifier, verifier, handshakeTTL); err != nil {
		return nil, fmt.Errorf("store verifier: %w", err)
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", m.cfg.ClientID)
	params.Set("redirect_uri", m.redirectURI(originURL))
	params.Set("scope", strings.Join(m.cfg.Scopes, " "))
	params.Set("state", state)
	params.Set("code_challenge", verifier)
	params.Set("code_challenge_method", "plain")

	logging.Debug().
		Str("component", "token").
		Msg("authorization request built")

	return &AuthorizationRequest{
		AuthorizeURL: m.cfg.AuthorizeURL + "?" + params.Encode(),
		State:        state,
		Verifier:     verifier,
	}, nil
}

// CompleteHandshake validates the presented state against the stored
// handshake and exchanges the authorization code for a token pair.
//
// The handshake is single-use: it is consumed before the exchange, so a
// failed exchange requires restarting the authorize flow. Fails with
// ErrHandshakeMismatch when the state differs, the handshake expired,
// or no handshake is pending; fails with ErrTokenExchangeFailed on a
// non-success response from the token endpoint. The resulting token
// pair is persisted before returning.
func (m *Manager) CompleteHandshake(ctx context.Context, code, presentedState, originURL string) (*Token, error) {
	storedState, err := m.kv.Get(keyState)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, ErrHandshakeMismatch
		}
		return nil, fmt.Errorf("read handshake state: %w", err)
	}
	if presentedState == "" || presentedState != storedState {
		return nil, ErrHandshakeMismatch
	}

	verifier, err := m.kv.Get(keyVerifier)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, ErrHandshakeMismatch
		}
		return nil, fmt.Errorf("read handshake verifier: %w", err)
	}

	// Consume the handshake to prevent replay (single use). Deletion
	// failures are cleanup-only; the state was already validated.
	_ = m.kv.Delete(keyState)
	_ = m.kv.Delete(keyVerifier)

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", m.redirectURI(originURL))
	form.Set("code_verifier", verifier)

	tok, err := m.requestToken(ctx, form, ErrTokenExchangeFailed)
	if err != nil {
		return nil, err
	}

	if err := m.persistToken(tok); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}

	logging.Info().
		Str("component", "token").
		Str("access_token", logging.Redact(tok.AccessToken)).
		Time("expires_at", tok.ExpiresAt).
		Msg("authorization handshake completed")

	return tok, nil
}

// GetValidToken returns an access token guaranteed to remain valid for
// at least the refresh skew. The stored token is returned as long as
// now < expires_at - skew; at or past that boundary a refresh is
// attempted first.
//
// Refresh source priority: the stored refresh token, then the
// statically configured fallback. Returns ErrCredentialUnavailable when
// no refresh source exists or the refresh is rejected; refresh failures
// are logged here rather than surfaced, so callers can apply their own
// backoff without inspecting the cause.
func (m *Manager) GetValidToken(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	access, accessErr := m.kv.Get(keyAccessToken)
	expiresMs, expiresErr := m.kv.GetMilli(keyExpiresAt)
	if accessErr != nil && !errors.Is(accessErr, store.ErrKeyNotFound) {
		return nil, fmt.Errorf("read access token: %w", accessErr)
	}

	if accessErr == nil && expiresErr == nil {
		expiresAt := time.UnixMilli(expiresMs)
		if m.now().Before(expiresAt.Add(-refreshSkew)) {
			return &Token{AccessToken: access, ExpiresAt: expiresAt}, nil
		}
	}

	refreshToken, err := m.kv.Get(keyRefreshToken)
	if err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			return nil, fmt.Errorf("read refresh token: %w", err)
		}
		refreshToken = m.cfg.FallbackRefreshToken
	}
	if refreshToken == "" {
		logging.Debug().
			Str("component", "token").
			Msg("no refresh token available; credential absent")
		return nil, ErrCredentialUnavailable
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	tok, err := m.requestToken(ctx, form, ErrTokenRefreshFailed)
	if err != nil {
		metrics.RecordTokenRefresh(false)
		logging.Warn().
			Str("component", "token").
			Err(err).
			Msg("token refresh failed; credential unavailable")
		return nil, ErrCredentialUnavailable
	}
	metrics.RecordTokenRefresh(true)

	if err := m.persistToken(tok); err != nil {
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}

	logging.Info().
		Str("component", "token").
		Str("access_token", logging.Redact(tok.AccessToken)).
		Time("expires_at", tok.ExpiresAt).
		Msg("access token refreshed")

	return tok, nil
}

// HasAccessToken reports whether an access token is currently stored.
// It probes presence only; freshness is GetValidToken's concern.
func (m *Manager) HasAccessToken() bool {
	return m.kv.Has(keyAccessToken)
}

// HasRefreshToken reports whether a refresh token is currently stored.
func (m *Manager) HasRefreshToken() bool {
	return m.kv.Has(keyRefreshToken)
}

// requestToken POSTs the given grant form to the token endpoint using
// Basic client authentication and parses the token response. Non-2xx
// responses are wrapped in sentinel (with the status and body retained
// for logs).
func (m *Manager) requestToken(ctx context.Context, form url.Values, sentinel error) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(m.cfg.ClientID, m.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", sentinel, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", sentinel, resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", sentinel, err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carried no access token", sentinel)
	}

	return &Token{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		ExpiresAt:    m.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}, nil
}

// persistToken replaces the stored token pair with the given one. The
// writes are per-key; there is no cross-key atomicity, so readers judge
// freshness solely by the expiry key. A missing refresh token in the
// response keeps the previously stored one (providers that do not
// rotate omit it).
func (m *Manager) persistToken(tok *Token) error {
	if err := m.kv.Put(keyAccessToken, tok.AccessToken, 0); err != nil {
		return err
	}
	if tok.RefreshToken != "" {
		if err := m.kv.Put(keyRefreshToken, tok.RefreshToken, 0); err != nil {
			return err
		}
	}
	return m.kv.PutMilli(keyExpiresAt, tok.ExpiresAt.UnixMilli())
}

// redirectURI derives the callback URI presented at authorize and
// exchange time. Both steps must present the identical value or the
// provider rejects the exchange.
func (m *Manager) redirectURI(originURL string) string {
	if originURL == "" {
		return m.cfg.RedirectURI
	}
	return strings.TrimSuffix(originURL, "/") + callbackPath
}

// generateNonce returns 32 bytes of cryptographically secure randomness
// encoded as URL-safe base64 (43 characters, within the RFC 7636
// verifier bounds).
func generateNonce() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
