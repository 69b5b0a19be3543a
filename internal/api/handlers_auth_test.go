// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/mentio/internal/token"
)

func TestLogin_RedirectsToProvider(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokenManager{
		authReq: &token.AuthorizationRequest{
			AuthorizeURL: "https://provider.example/authorize?state=abc",
			State:        "abc",
			Verifier:     "ver",
		},
	}
	handler := newTestHandler(tokens, &fakeUpstreamClient{}, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "http://bot.example.com/auth/login", nil)
	w := httptest.NewRecorder()
	handler.Login(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); loc != tokens.authReq.AuthorizeURL {
		t.Errorf("Location = %q, want %q", loc, tokens.authReq.AuthorizeURL)
	}
	if tokens.gotOrigin != "http://bot.example.com" {
		t.Errorf("origin passed to manager = %q, want %q", tokens.gotOrigin, "http://bot.example.com")
	}
}

func TestLogin_BuildFailure(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokenManager{buildErr: errors.New("store write failed")}
	handler := newTestHandler(tokens, &fakeUpstreamClient{}, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	w := httptest.NewRecorder()
	handler.Login(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	resp := decodeResponse(t, w)
	if resp.Success {
		t.Error("success should be false")
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeInternalError {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeInternalError)
	}
}

func TestAuthCallback_Success(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(2 * time.Hour).UTC()
	tokens := &fakeTokenManager{
		handshakeTok: &token.Token{
			AccessToken:  "at",
			RefreshToken: "rt",
			TokenType:    "bearer",
			ExpiresAt:    expiry,
		},
	}
	handler := newTestHandler(tokens, &fakeUpstreamClient{}, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=abc&code=xyz", nil)
	w := httptest.NewRecorder()
	handler.AuthCallback(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeResponse(t, w)
	if !resp.Success {
		t.Error("success should be true")
	}
	data := responseData(t, resp)
	if data["authorized"] != true {
		t.Errorf("authorized = %v, want true", data["authorized"])
	}
	if data["token_type"] != "bearer" {
		t.Errorf("token_type = %v, want bearer", data["token_type"])
	}

	if tokens.gotCode != "xyz" {
		t.Errorf("code = %q, want %q", tokens.gotCode, "xyz")
	}
	if tokens.gotState != "abc" {
		t.Errorf("state = %q, want %q", tokens.gotState, "abc")
	}
}

func TestAuthCallback_MissingParams(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokenManager{}
	handler := newTestHandler(tokens, &fakeUpstreamClient{}, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	w := httptest.NewRecorder()
	handler.AuthCallback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeValidationFailed)
	}
	if tokens.gotCode != "" {
		t.Error("handshake should not run without parameters")
	}
}

func TestAuthCallback_StateMismatch(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokenManager{
		handshakeErr: fmt.Errorf("%w: state does not match", token.ErrHandshakeMismatch),
	}
	handler := newTestHandler(tokens, &fakeUpstreamClient{}, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=forged&code=xyz", nil)
	w := httptest.NewRecorder()
	handler.AuthCallback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != ErrCodeHandshakeMismatch {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeHandshakeMismatch)
	}
}

func TestAuthCallback_ExchangeFailed(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokenManager{
		handshakeErr: fmt.Errorf("%w: provider answered 500", token.ErrTokenExchangeFailed),
	}
	handler := newTestHandler(tokens, &fakeUpstreamClient{}, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=abc&code=xyz", nil)
	w := httptest.NewRecorder()
	handler.AuthCallback(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != ErrCodeExternalServiceFail {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeExternalServiceFail)
	}
}

func TestAuthCallback_ProviderDenial(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokenManager{}
	handler := newTestHandler(tokens, &fakeUpstreamClient{}, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil)
	w := httptest.NewRecorder()
	handler.AuthCallback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != ErrCodeBadRequest {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeBadRequest)
	}
	if tokens.gotCode != "" || tokens.gotState != "" {
		t.Error("handshake should not run when the provider reports denial")
	}
}

func TestAuthCallback_UnexpectedError(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokenManager{handshakeErr: errors.New("store unavailable")}
	handler := newTestHandler(tokens, &fakeUpstreamClient{}, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=abc&code=xyz", nil)
	w := httptest.NewRecorder()
	handler.AuthCallback(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
