// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package dispatch turns dequeued mentions into posted replies. Each
// delivery produces a settlement decision for the queue consumer: a
// posted reply acknowledges the mention, anything else asks for
// redelivery.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/metrics"
	"github.com/tomtom215/mentio/internal/queue"
	"github.com/tomtom215/mentio/internal/token"
	"github.com/tomtom215/mentio/internal/upstream"
)

// credentialRetryDelay is how long a mention is parked when no usable
// credential exists. Authorization is an operator action, so rapid
// redelivery would only burn the delivery budget before anyone can react.
const credentialRetryDelay = 5 * time.Minute

// TokenSource yields a valid access token or reports that none can be
// obtained right now.
type TokenSource interface {
	GetValidToken(ctx context.Context) (*token.Token, error)
}

// Dispatcher posts a reply for each mention delivered from the queue.
type Dispatcher struct {
	tokens    TokenSource
	client    upstream.ClientInterface
	replyText string
}

// NewDispatcher creates a dispatcher that replies with the given text.
func NewDispatcher(tokens TokenSource, client upstream.ClientInterface, replyText string) *Dispatcher {
	return &Dispatcher{
		tokens:    tokens,
		client:    client,
		replyText: replyText,
	}
}

// Handle processes one mention and returns its settlement decision.
//
// Without a usable credential the mention is parked for redelivery after
// credentialRetryDelay, and no reply request is attempted. Transport
// failures and non-success responses lean on the broker's default
// redelivery backoff instead.
func (d *Dispatcher) Handle(ctx context.Context, msg *queue.Message) queue.Decision {
	tok, err := d.tokens.GetValidToken(ctx)
	if err != nil {
		if errors.Is(err, token.ErrCredentialUnavailable) {
			logging.Warn().
				Str("tweet_id", msg.Tweet.ID).
				Dur("retry_in", credentialRetryDelay).
				Msg("No usable credential, parking mention")
			metrics.DispatchDecisions.WithLabelValues("retry_credential").Inc()
			return queue.RetryAfter(credentialRetryDelay)
		}

		logging.Error().Err(err).Str("tweet_id", msg.Tweet.ID).Msg("Credential lookup failed")
		metrics.DispatchDecisions.WithLabelValues("retry").Inc()
		return queue.Retry()
	}

	receipt, err := d.client.PostReply(ctx, tok.AccessToken, msg.Tweet.ID, d.replyText)
	if err != nil {
		logging.Warn().Err(err).Str("tweet_id", msg.Tweet.ID).Msg("Reply post failed")
		metrics.DispatchDecisions.WithLabelValues("retry").Inc()
		return queue.Retry()
	}

	logging.Info().
		Str("tweet_id", msg.Tweet.ID).
		Str("reply_id", receipt.ID).
		Str("author", msg.AuthorUsername()).
		Msg("Reply posted")
	metrics.DispatchDecisions.WithLabelValues("ack").Inc()
	return queue.Ack()
}
