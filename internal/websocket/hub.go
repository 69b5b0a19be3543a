// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/mentio/internal/logging"
	"github.com/tomtom215/mentio/internal/metrics"
	"github.com/tomtom215/mentio/internal/queue"
)

// Feed message types.
const (
	MessageTypeMention = "mention"
	MessageTypePing    = "ping"
	MessageTypePong    = "pong"
)

// Message is the envelope for every frame sent to feed clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// FeedMention is the feed-facing shape of a queued mention. The author
// username is resolved from the expansion objects at broadcast time so
// clients never need the raw includes structure.
type FeedMention struct {
	TweetID        string    `json:"tweet_id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      string    `json:"created_at,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Hub maintains the set of connected feed clients and broadcasts
// mentions to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub. Run must be started before clients are
// registered.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run services client lifecycle events and broadcasts until the context
// is canceled, then closes every connected client and returns ctx.Err().
//
// Selection is priority ordered: shutdown first, then lifecycle events,
// then broadcasts. Go's select picks randomly among ready channels, so
// without the staged checks a burst of broadcasts could starve a
// pending unregister and push frames at a client that already left.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().
		Str("component", "feed").
		Int("total_clients", total).
		Msg("Feed client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().
		Str("component", "feed").
		Int("total_clients", total).
		Msg("Feed client disconnected")
}

// broadcastToClients delivers a message to every connected client in
// client-ID order. The stable order keeps delivery sequences
// reproducible under test. A client whose send buffer is full is
// disconnected; the feed never blocks on a slow reader.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSErrors.WithLabelValues("slow_client").Inc()
		logging.Warn().
			Str("component", "feed").
			Uint64("client_id", client.id).
			Msg("Feed client evicted, send buffer full")
	}
	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
	}
}

// shutdown closes all connected clients and logs the shutdown cause.
// Context cancellation is the expected stop path, so it is logged as
// information rather than an error.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WSConnections.Set(0)

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "feed").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("Feed hub stopped")
}

// BroadcastMention queues a mention for delivery to all feed clients.
// Never blocks: when the broadcast buffer is full the mention is dropped
// from the feed (it remains in the reply pipeline).
func (h *Hub) BroadcastMention(m *queue.Message) {
	message := Message{
		Type: MessageTypeMention,
		Data: feedMentionFrom(m),
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_full").Inc()
		logging.Warn().
			Str("component", "feed").
			Str("tweet_id", m.Tweet.ID).
			Msg("Broadcast buffer full, mention not shown on feed")
	}
}

// GetClientCount returns the number of connected feed clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// feedMentionFrom flattens a queued mention into the feed shape.
func feedMentionFrom(m *queue.Message) FeedMention {
	return FeedMention{
		TweetID:        m.Tweet.ID,
		Text:           m.Tweet.Text,
		AuthorID:       m.Tweet.AuthorID,
		AuthorUsername: m.AuthorUsername(),
		ConversationID: m.Tweet.ConversationID,
		CreatedAt:      m.Tweet.CreatedAt,
		ReceivedAt:     m.Timestamp,
	}
}
