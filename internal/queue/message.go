// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package queue

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Tweet is the tweet portion of a queued mention. Fields mirror the
// upstream filtered-stream payload so nothing is lost between ingestion
// and dispatch.
type Tweet struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	AuthorID       string `json:"author_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	// CreatedAt is passed through verbatim. The upstream timestamp format
	// is not re-parsed here so an odd value never invalidates the event.
	CreatedAt string `json:"created_at,omitempty"`
}

// User is an expanded author object resolved by the stream endpoint.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Includes carries expansion objects attached to a mention.
type Includes struct {
	Users []User `json:"users,omitempty"`
}

// Message is the queue payload for one mention. This is the canonical
// format between the stream supervisor (producer) and the reply
// dispatcher (consumer).
type Message struct {
	Tweet     Tweet     `json:"tweet"`
	Includes  *Includes `json:"includes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a queue message stamped with the enqueue time.
func NewMessage(tweet Tweet, includes *Includes) *Message {
	return &Message{
		Tweet:     tweet,
		Includes:  includes,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks required fields and returns an error if validation fails.
func (m *Message) Validate() error {
	if m.Tweet.ID == "" {
		return &ValidationError{Field: "tweet.id", Message: "required"}
	}
	if m.Tweet.AuthorID == "" {
		return &ValidationError{Field: "tweet.author_id", Message: "required"}
	}
	if m.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "required"}
	}
	return nil
}

// AuthorUsername resolves the author's username from the expansion
// objects. Returns an empty string when the expansion is missing.
func (m *Message) AuthorUsername() string {
	if m.Includes == nil {
		return ""
	}
	for _, u := range m.Includes.Users {
		if u.ID == m.Tweet.AuthorID {
			return u.Username
		}
	}
	return ""
}

// Marshal encodes the message for queue transport. Validation runs first
// so a malformed message is rejected at the publish boundary instead of
// surfacing in the dispatcher.
func (m *Message) Marshal() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validate message: %w", err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	return data, nil
}

// UnmarshalMessage decodes a queue payload.
func UnmarshalMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	return &m, nil
}

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
