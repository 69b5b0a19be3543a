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

	"github.com/tomtom215/mentio/internal/stream"
	"github.com/tomtom215/mentio/internal/token"
	"github.com/tomtom215/mentio/internal/upstream"
)

func TestStatus_ReportsLiveness(t *testing.T) {
	t.Parallel()

	lastEvent := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	streamCtl := &fakeStreamController{
		status: stream.Status{
			Running:            true,
			State:              stream.StateStreaming,
			LastEventTime:      lastEvent,
			TimeSinceLastEvent: 90 * time.Second,
		},
	}
	tokens := &fakeTokenManager{hasAccess: true, hasRefresh: true}
	handler := newTestHandler(tokens, &fakeUpstreamClient{}, streamCtl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	handler.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeResponse(t, w)
	if !resp.Success {
		t.Error("success should be true")
	}
	data := responseData(t, resp)

	if data["running"] != true {
		t.Errorf("running = %v, want true", data["running"])
	}
	if data["state"] != "streaming" {
		t.Errorf("state = %v, want streaming", data["state"])
	}
	if data["lastTweetTime"] != lastEvent.Format(time.RFC3339) {
		t.Errorf("lastTweetTime = %v, want %s", data["lastTweetTime"], lastEvent.Format(time.RFC3339))
	}
	if data["timeSinceLastTweet"] != float64(90000) {
		t.Errorf("timeSinceLastTweet = %v, want 90000", data["timeSinceLastTweet"])
	}
	if data["hasAccessToken"] != true {
		t.Errorf("hasAccessToken = %v, want true", data["hasAccessToken"])
	}
	if data["hasRefreshToken"] != true {
		t.Errorf("hasRefreshToken = %v, want true", data["hasRefreshToken"])
	}
	if data["version"] != "test" {
		t.Errorf("version = %v, want test", data["version"])
	}
}

func TestStatus_NoEventsYet(t *testing.T) {
	t.Parallel()

	streamCtl := &fakeStreamController{
		status: stream.Status{
			Running: true,
			State:   stream.StateConnecting,
		},
	}
	handler := newTestHandler(&fakeTokenManager{}, &fakeUpstreamClient{}, streamCtl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	handler.Status(w, req)

	data := responseData(t, decodeResponse(t, w))

	if _, present := data["lastTweetTime"]; present {
		t.Error("lastTweetTime should be omitted before the first event")
	}
	if data["timeSinceLastTweet"] != float64(0) {
		t.Errorf("timeSinceLastTweet = %v, want 0", data["timeSinceLastTweet"])
	}
	if data["hasAccessToken"] != false {
		t.Errorf("hasAccessToken = %v, want false", data["hasAccessToken"])
	}
}

func TestRules_Success(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokenManager{validTok: &token.Token{AccessToken: "tok-1"}}
	client := &fakeUpstreamClient{
		rules: []upstream.Rule{
			{ID: "1", Value: "@mentio", Tag: "mentions"},
			{ID: "2", Value: "#mentio", Tag: "hashtag"},
		},
	}
	handler := newTestHandler(tokens, client, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	w := httptest.NewRecorder()
	handler.Rules(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	data := responseData(t, decodeResponse(t, w))
	if data["count"] != float64(2) {
		t.Errorf("count = %v, want 2", data["count"])
	}
	rules, ok := data["rules"].([]interface{})
	if !ok || len(rules) != 2 {
		t.Fatalf("rules = %v, want 2 entries", data["rules"])
	}
	if client.gotToken != "tok-1" {
		t.Errorf("access token passed upstream = %q, want %q", client.gotToken, "tok-1")
	}
}

func TestRules_NoCredential(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokenManager{
		validErr: fmt.Errorf("%w: no access token", token.ErrCredentialUnavailable),
	}
	handler := newTestHandler(tokens, &fakeUpstreamClient{}, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	w := httptest.NewRecorder()
	handler.Rules(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeServiceUnavailable)
	}
}

func TestRules_UpstreamError(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokenManager{validTok: &token.Token{AccessToken: "tok-1"}}
	client := &fakeUpstreamClient{rulesErr: errors.New("connection reset")}
	handler := newTestHandler(tokens, client, &fakeStreamController{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	w := httptest.NewRecorder()
	handler.Rules(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != ErrCodeExternalServiceFail {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeExternalServiceFail)
	}
}

func TestStreamStart_ForcesRestart(t *testing.T) {
	t.Parallel()

	streamCtl := &fakeStreamController{
		status: stream.Status{Running: true, State: stream.StateConnecting},
	}
	handler := newTestHandler(&fakeTokenManager{}, &fakeUpstreamClient{}, streamCtl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", nil)
	w := httptest.NewRecorder()
	handler.StreamStart(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if streamCtl.startCalls != 1 {
		t.Errorf("startCalls = %d, want 1", streamCtl.startCalls)
	}

	data := responseData(t, decodeResponse(t, w))
	if data["running"] != true {
		t.Errorf("running = %v, want true", data["running"])
	}
}

func TestStreamStart_SupervisorNotRunning(t *testing.T) {
	t.Parallel()

	streamCtl := &fakeStreamController{startErr: stream.ErrNotRunning}
	handler := newTestHandler(&fakeTokenManager{}, &fakeUpstreamClient{}, streamCtl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", nil)
	w := httptest.NewRecorder()
	handler.StreamStart(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestStreamStop_TearsDown(t *testing.T) {
	t.Parallel()

	streamCtl := &fakeStreamController{
		status: stream.Status{Running: false, State: stream.StateStopped},
	}
	handler := newTestHandler(&fakeTokenManager{}, &fakeUpstreamClient{}, streamCtl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream/stop", nil)
	w := httptest.NewRecorder()
	handler.StreamStop(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if streamCtl.stopCalls != 1 {
		t.Errorf("stopCalls = %d, want 1", streamCtl.stopCalls)
	}

	data := responseData(t, decodeResponse(t, w))
	if data["running"] != false {
		t.Errorf("running = %v, want false", data["running"])
	}
	if data["state"] != "stopped" {
		t.Errorf("state = %v, want stopped", data["state"])
	}
}
