// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package upstream implements the HTTP client for the filtered-stream
// provider: opening the long-lived stream, posting replies, and listing
// the active stream rules.
//
// The reply path sits behind a circuit breaker and a client-side rate
// limiter; the stream path deliberately has neither, because its
// lifecycle is owned by the stream supervisor's restart loop.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mentio/internal/config"
	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/metrics"
)

// Upstream request errors.
var (
	// ErrStreamConnect indicates the stream endpoint returned a
	// non-success status or the connection could not be established.
	ErrStreamConnect = errors.New("stream connection failed")

	// ErrReplyPost indicates a reply could not be posted: a transport
	// failure, a non-success status, or a rejected circuit breaker call.
	ErrReplyPost = errors.New("reply post failed")
)

const userAgent = "Mentio/1.0"

// ClientInterface defines the upstream API operations. Both Client and
// test fakes implement this interface.
type ClientInterface interface {
	OpenStream(ctx context.Context, accessToken string) (io.ReadCloser, error)
	PostReply(ctx context.Context, accessToken, inReplyTo, text string) (*ReplyReceipt, error)
	ListRules(ctx context.Context, accessToken string) ([]Rule, error)
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// ReplyReceipt is the provider's acknowledgment of a posted reply.
type ReplyReceipt struct {
	ID string `json:"id"`
}

// Rule is one active filtered-stream rule.
type Rule struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

// Client provides access to the filtered-stream provider API.
type Client struct {
	streamURL string
	rulesURL  string
	replyURL  string

	// requestClient bounds request/response calls (replies, rules).
	requestClient *http.Client

	// streamClient carries no timeout: the stream body is read for as
	// long as the provider keeps it open, and cancellation happens via
	// the request context instead.
	streamClient *http.Client

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*ReplyReceipt]
}

// NewClient creates an upstream client from the given configuration.
func NewClient(cfg *config.UpstreamConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	replyRate := rate.Limit(cfg.ReplyRate)
	if cfg.ReplyRate <= 0 {
		replyRate = rate.Inf
	}
	burst := cfg.ReplyBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		streamURL:     cfg.StreamURL,
		rulesURL:      cfg.RulesURL,
		replyURL:      cfg.ReplyURL,
		requestClient: &http.Client{Timeout: timeout},
		streamClient:  &http.Client{},
		limiter:       rate.NewLimiter(replyRate, burst),
		breaker:       newReplyBreaker(),
	}
}

// newReplyBreaker builds the circuit breaker guarding the reply path.
// Breaker configuration:
// - Opens after 5 consecutive failures
// - 1 minute measurement window in closed state
// - 30 second timeout before attempting recovery
// - Single probe request in half-open state
func newReplyBreaker() *gobreaker.CircuitBreaker[*ReplyReceipt] {
	const cbName = "upstream-reply"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	return gobreaker.NewCircuitBreaker[*ReplyReceipt](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			shouldTrip := counts.ConsecutiveFailures >= 5
			if shouldTrip {
				logging.Warn().
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening reply circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
}

// OpenStream opens the filtered stream and returns its body for
// line-by-line consumption. The caller owns the returned reader and
// must close it; cancelling ctx aborts an in-flight read.
//
// The request carries the event field and expansion parameters the
// pipeline depends on (created_at, author_id, conversation_id, and the
// author username expansion).
func (c *Client) OpenStream(ctx context.Context, accessToken string) (io.ReadCloser, error) {
	params := url.Values{}
	params.Set("tweet.fields", "created_at,author_id,conversation_id")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "username")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	c.setHeaders(req, accessToken)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamConnect, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("%w: status %d", ErrStreamConnect, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrStreamConnect, resp.StatusCode, string(body))
	}

	return resp.Body, nil
}

// PostReply posts a reply to the given event through the rate limiter
// and circuit breaker. Returns the provider's receipt on success and
// ErrReplyPost on any transport failure, non-success status, or breaker
// rejection.
func (c *Client) PostReply(ctx context.Context, accessToken, inReplyTo, text string) (*ReplyReceipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrReplyPost, err)
	}

	start := time.Now()
	receipt, err := c.breaker.Execute(func() (*ReplyReceipt, error) {
		return c.doPostReply(ctx, accessToken, inReplyTo, text)
	})
	metrics.ReplyPostDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues("upstream-reply", "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Reply rejected")
			return nil, fmt.Errorf("%w: %w", ErrReplyPost, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues("upstream-reply", "failure").Inc()
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues("upstream-reply", "success").Inc()
	return receipt, nil
}

// doPostReply performs the actual reply POST.
func (c *Client) doPostReply(ctx context.Context, accessToken, inReplyTo, text string) (*ReplyReceipt, error) {
	payload := struct {
		Text  string `json:"text"`
		Reply struct {
			InReplyToTweetID string `json:"in_reply_to_tweet_id"`
		} `json:"reply"`
	}{Text: text}
	payload.Reply.InReplyToTweetID = inReplyTo

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode body: %w", ErrReplyPost, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.replyURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrReplyPost, err)
	}
	c.setHeaders(req, accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.requestClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReplyPost, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrReplyPost, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrReplyPost, resp.StatusCode, string(respBody))
	}

	// A success status means the reply exists upstream. A body that
	// fails to decode must not turn into a retry, or the reply would be
	// posted twice.
	var receiptResp struct {
		Data ReplyReceipt `json:"data"`
	}
	if err := json.Unmarshal(respBody, &receiptResp); err != nil {
		logging.Warn().Err(err).Msg("reply posted but receipt could not be decoded")
		return &ReplyReceipt{}, nil
	}

	return &receiptResp.Data, nil
}

// ListRules retrieves the active filtered-stream rules for the status
// surface.
func (c *Client) ListRules(ctx context.Context, accessToken string) ([]Rule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.rulesURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create rules request: %w", err)
	}
	c.setHeaders(req, accessToken)

	resp, err := c.requestClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rules request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("rules returned status %d (failed to read body)", resp.StatusCode)
		}
		return nil, fmt.Errorf("rules returned status %d: %s", resp.StatusCode, string(body))
	}

	var rulesResp struct {
		Data []Rule `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rulesResp); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	return rulesResp.Data, nil
}

// setHeaders applies the common request headers. The bearer header is
// omitted when no token is held, letting the provider reject the call.
func (c *Client) setHeaders(req *http.Request, accessToken string) {
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
