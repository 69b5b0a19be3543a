// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/mentio/internal/queue"
	"github.com/tomtom215/mentio/internal/token"
	"github.com/tomtom215/mentio/internal/upstream"
)

type fakeTokens struct {
	tok *token.Token
	err error
}

func (f *fakeTokens) GetValidToken(_ context.Context) (*token.Token, error) {
	return f.tok, f.err
}

type fakeClient struct {
	posts         int
	lastToken     string
	lastInReplyTo string
	lastText      string
	receipt       *upstream.ReplyReceipt
	err           error
}

func (f *fakeClient) OpenStream(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) PostReply(_ context.Context, accessToken, inReplyTo, text string) (*upstream.ReplyReceipt, error) {
	f.posts++
	f.lastToken = accessToken
	f.lastInReplyTo = inReplyTo
	f.lastText = text
	if f.err != nil {
		return nil, f.err
	}
	return f.receipt, nil
}

func (f *fakeClient) ListRules(_ context.Context, _ string) ([]upstream.Rule, error) {
	return nil, errors.New("not implemented")
}

func testMention() *queue.Message {
	return &queue.Message{
		Tweet: queue.Tweet{
			ID:       "1890000000000000001",
			Text:     "@mentio hello there",
			AuthorID: "555",
		},
		Includes: &queue.Includes{
			Users: []queue.User{{ID: "555", Username: "someone"}},
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestDispatcher_Handle(t *testing.T) {
	validToken := &token.Token{AccessToken: "tok-abc", ExpiresAt: time.Now().Add(time.Hour)}

	tests := []struct {
		name      string
		tokens    *fakeTokens
		client    *fakeClient
		want      queue.Decision
		wantPosts int
	}{
		{
			name:      "no credential parks mention without posting",
			tokens:    &fakeTokens{err: token.ErrCredentialUnavailable},
			client:    &fakeClient{receipt: &upstream.ReplyReceipt{ID: "99"}},
			want:      queue.RetryAfter(5 * time.Minute),
			wantPosts: 0,
		},
		{
			name:      "wrapped credential error parks mention",
			tokens:    &fakeTokens{err: fmt.Errorf("refresh: %w", token.ErrCredentialUnavailable)},
			client:    &fakeClient{},
			want:      queue.RetryAfter(5 * time.Minute),
			wantPosts: 0,
		},
		{
			name:      "credential lookup failure retries with default backoff",
			tokens:    &fakeTokens{err: errors.New("store unavailable")},
			client:    &fakeClient{},
			want:      queue.Retry(),
			wantPosts: 0,
		},
		{
			name:      "post failure retries with default backoff",
			tokens:    &fakeTokens{tok: validToken},
			client:    &fakeClient{err: fmt.Errorf("%w: unexpected status 500", upstream.ErrReplyPost)},
			want:      queue.Retry(),
			wantPosts: 1,
		},
		{
			name:      "posted reply acknowledges mention",
			tokens:    &fakeTokens{tok: validToken},
			client:    &fakeClient{receipt: &upstream.ReplyReceipt{ID: "99"}},
			want:      queue.Ack(),
			wantPosts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tt.tokens, tt.client, "Thanks for the mention!")

			got := d.Handle(context.Background(), testMention())

			if got != tt.want {
				t.Errorf("Handle() = %v, want %v", got, tt.want)
			}
			if tt.client.posts != tt.wantPosts {
				t.Errorf("posts = %d, want %d", tt.client.posts, tt.wantPosts)
			}
		})
	}
}

func TestDispatcher_Handle_PostArguments(t *testing.T) {
	client := &fakeClient{receipt: &upstream.ReplyReceipt{ID: "99"}}
	tokens := &fakeTokens{tok: &token.Token{AccessToken: "tok-abc", ExpiresAt: time.Now().Add(time.Hour)}}
	d := NewDispatcher(tokens, client, "Thanks for the mention!")

	msg := testMention()
	if got := d.Handle(context.Background(), msg); !got.Acked() {
		t.Fatalf("Handle() = %v, want ack", got)
	}

	if client.lastToken != "tok-abc" {
		t.Errorf("access token = %q, want %q", client.lastToken, "tok-abc")
	}
	if client.lastInReplyTo != msg.Tweet.ID {
		t.Errorf("in_reply_to = %q, want %q", client.lastInReplyTo, msg.Tweet.ID)
	}
	if client.lastText != "Thanks for the mention!" {
		t.Errorf("reply text = %q, want %q", client.lastText, "Thanks for the mention!")
	}
}

func TestDispatcher_Handle_CredentialRetryDelay(t *testing.T) {
	d := NewDispatcher(&fakeTokens{err: token.ErrCredentialUnavailable}, &fakeClient{}, "hi")

	got := d.Handle(context.Background(), testMention())

	if got.Acked() {
		t.Fatal("expected a retry decision")
	}
	if got.Delay() != 5*time.Minute {
		t.Errorf("retry delay = %v, want %v", got.Delay(), 5*time.Minute)
	}
}
