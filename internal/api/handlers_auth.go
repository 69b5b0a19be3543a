// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/token"
	"github.com/tomtom215/mentio/internal/validation"
)

// AuthCallbackRequest captures the query parameters of the OAuth callback.
type AuthCallbackRequest struct {
	State string `validate:"required"`
	Code  string `validate:"required"`
}

// AuthCallbackResponse is returned once the handshake completes.
type AuthCallbackResponse struct {
	Authorized bool      `json:"authorized"`
	TokenType  string    `json:"token_type,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Login starts the OAuth authorization flow.
//
// GET /auth/login
//
// Generates a fresh state and PKCE verifier, persists both, and redirects
// the operator's browser to the provider's authorization page. The redirect
// URI is derived from the Host header so the flow works on whatever address
// the operator reached us on.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	authReq, err := h.tokens.BuildAuthorizationRequest(requestOrigin(r))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to build authorization request")
		NewResponseWriter(w, r).InternalError("Failed to start authorization")
		return
	}

	logging.Info().
		Str("component", "api").
		Msg("OAuth login initiated, redirecting to provider")

	http.Redirect(w, r, authReq.AuthorizeURL, http.StatusFound)
}

// AuthCallback completes the OAuth authorization flow.
//
// GET /auth/callback?state=...&code=...
//
// Verifies the presented state against the one persisted at login, exchanges
// the code for tokens, and stores them. A state mismatch is rejected without
// contacting the provider.
func (h *Handler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	// Providers report user denial via the error parameter instead of a code.
	if denial := q.Get("error"); denial != "" {
		logging.Warn().
			Str("component", "api").
			Str("error", sanitizeLogValue(denial)).
			Msg("Authorization denied by provider")
		rw.BadRequest("Authorization denied: " + sanitizeLogValue(denial))
		return
	}

	req := AuthCallbackRequest{
		State: q.Get("state"),
		Code:  q.Get("code"),
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError("Missing callback parameters", verr.Errors())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	tok, err := h.tokens.CompleteHandshake(ctx, req.Code, req.State, requestOrigin(r))
	if err != nil {
		switch {
		case errors.Is(err, token.ErrHandshakeMismatch):
			rw.Error(http.StatusBadRequest, ErrCodeHandshakeMismatch, "Authorization state mismatch")
		case errors.Is(err, token.ErrTokenExchangeFailed):
			rw.ExternalServiceError("token endpoint", err)
		default:
			logging.Error().Err(err).Msg("OAuth callback failed")
			rw.InternalError("Failed to complete authorization")
		}
		return
	}

	logging.Info().
		Str("component", "api").
		Time("expires_at", tok.ExpiresAt).
		Msg("OAuth handshake completed, tokens stored")

	rw.Success(AuthCallbackResponse{
		Authorized: true,
		TokenType:  tok.TokenType,
		ExpiresAt:  tok.ExpiresAt,
	})
}
