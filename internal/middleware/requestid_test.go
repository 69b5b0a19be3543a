// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/mentio/internal/logging"
)

func TestRequestID_GeneratesNewID(t *testing.T) {
	var capturedID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	wrappedHandler := RequestID(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	wrappedHandler(rec, req)

	responseID := rec.Header().Get("X-Request-ID")
	if responseID == "" {
		t.Error("Expected X-Request-ID header in response")
	}

	if _, err := uuid.Parse(responseID); err != nil {
		t.Errorf("Response X-Request-ID is not a valid UUID: %v", err)
	}

	if capturedID == "" {
		t.Error("Expected request ID in context")
	}

	if capturedID != responseID {
		t.Errorf("Context ID (%s) doesn't match response header ID (%s)", capturedID, responseID)
	}
}

func TestRequestID_PreservesExistingID(t *testing.T) {
	var capturedID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	wrappedHandler := RequestID(handler)

	existingID := "proxy-assigned-id-12345"
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", existingID)
	rec := httptest.NewRecorder()

	wrappedHandler(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != existingID {
		t.Errorf("Expected X-Request-ID to be %s, got %s", existingID, got)
	}

	if capturedID != existingID {
		t.Errorf("Expected context ID to be %s, got %s", existingID, capturedID)
	}
}

func TestRequestID_PopulatesLoggingContext(t *testing.T) {
	var loggedID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loggedID = logging.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	wrappedHandler := RequestID(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "log-correlation-id")
	rec := httptest.NewRecorder()

	wrappedHandler(rec, req)

	if loggedID != "log-correlation-id" {
		t.Errorf("Expected logging context ID to be log-correlation-id, got %s", loggedID)
	}
}

func TestGetRequestID_WithoutID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	if id := GetRequestID(req.Context()); id != "" {
		t.Errorf("Expected empty request ID for bare context, got %s", id)
	}
}
