// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package config loads and validates Mentio configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import "time"

// Config is the root configuration for the Mentio service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	OAuth    OAuthConfig    `koanf:"oauth"`
	Reply    ReplyConfig    `koanf:"reply"`
	Store    StoreConfig    `koanf:"store"`
	Queue    QueueConfig    `koanf:"queue"`
	Watchdog WatchdogConfig `koanf:"watchdog"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// UpstreamConfig configures the upstream social API endpoints.
// The defaults target the Twitter/X v2 API; all URLs are overridable so the
// bot can be pointed at a compatible mock in tests or at a proxy.
type UpstreamConfig struct {
	// StreamURL is the filtered-stream endpoint. The connection to it is
	// provider-bounded and short-lived; the stream supervisor reconnects
	// proactively.
	StreamURL string `koanf:"stream_url"`

	// RulesURL is the filtered-stream rules endpoint used by the status
	// surface.
	RulesURL string `koanf:"rules_url"`

	// ReplyURL is the tweet-creation endpoint used to post replies.
	ReplyURL string `koanf:"reply_url"`

	// RequestTimeout bounds non-streaming requests (replies, rules).
	// The stream request itself is never timeout-bounded; liveness is
	// judged by staleness instead.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// ReplyRate and ReplyBurst configure the client-side limiter on reply
	// posting (tokens per second / burst size).
	ReplyRate  float64 `koanf:"reply_rate"`
	ReplyBurst int     `koanf:"reply_burst"`
}

// OAuthConfig configures the OAuth2 authorization-code flow.
type OAuthConfig struct {
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri"`
	Scopes       []string `koanf:"scopes"`
	AuthorizeURL string   `koanf:"authorize_url"`
	TokenURL     string   `koanf:"token_url"`

	// FallbackRefreshToken is a statically provisioned refresh token used
	// when no refresh token is stored (fresh deployment, wiped store).
	FallbackRefreshToken string `koanf:"fallback_refresh_token"`
}

// ReplyConfig configures the reply content policy.
type ReplyConfig struct {
	// Text is the fixed reply body posted for each forwarded mention.
	Text string `koanf:"text"`
}

// StoreConfig configures the badger-backed credential store.
type StoreConfig struct {
	Path string `koanf:"path"`

	// GCInterval is how often the badger value-log garbage collector runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// QueueConfig configures the NATS JetStream event queue.
type QueueConfig struct {
	// Embedded runs an in-process NATS server. When false, URL must point
	// at an external broker.
	Embedded  bool   `koanf:"embedded"`
	StoreDir  string `koanf:"store_dir"`
	URL       string `koanf:"url"`
	MaxMemory int64  `koanf:"max_memory"`
	MaxStore  int64  `koanf:"max_store"`

	StreamName string `koanf:"stream_name"`
	Subject    string `koanf:"subject"`

	// Durable is the dispatcher's durable consumer name.
	Durable    string        `koanf:"durable"`
	AckWait    time.Duration `koanf:"ack_wait"`
	MaxDeliver int           `koanf:"max_deliver"`

	// DedupWindow is the JetStream duplicates window. It must cover the
	// proactive stream reconnect cadence so broker-side Msg-Id dedup
	// absorbs reconnect replays.
	DedupWindow time.Duration `koanf:"dedup_window"`
}

// WatchdogConfig configures the external liveness checker.
type WatchdogConfig struct {
	// Interval is how often the watchdog inspects stream liveness.
	Interval time.Duration `koanf:"interval"`

	// StaleAfter is the staleness threshold on the last event time beyond
	// which a restart is forced.
	StaleAfter time.Duration `koanf:"stale_after"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	// Default: false
	Caller bool `koanf:"caller"`
}

// defaultConfig returns a Config with all default values.
// Defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8425,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
		},
		Upstream: UpstreamConfig{
			StreamURL:      "https://api.twitter.com/2/tweets/search/stream",
			RulesURL:       "https://api.twitter.com/2/tweets/search/stream/rules",
			ReplyURL:       "https://api.twitter.com/2/tweets",
			RequestTimeout: 30 * time.Second,
			ReplyRate:      1,
			ReplyBurst:     1,
		},
		OAuth: OAuthConfig{
			ClientID:     "",
			ClientSecret: "",
			RedirectURI:  "",
			Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			AuthorizeURL: "https://twitter.com/i/oauth2/authorize",
			TokenURL:     "https://api.twitter.com/2/oauth2/token",
		},
		Reply: ReplyConfig{
			Text: "Thanks for the mention!",
		},
		Store: StoreConfig{
			Path:       "/data/mentio/store",
			GCInterval: 10 * time.Minute,
		},
		Queue: QueueConfig{
			Embedded:    true,
			StoreDir:    "/data/mentio/jetstream",
			URL:         "nats://127.0.0.1:4222",
			MaxMemory:   256 << 20, // 256MB
			MaxStore:    2 << 30,   // 2GB
			StreamName:  "MENTIO_EVENTS",
			Subject:     "mentio.events",
			Durable:     "mentio-dispatch",
			AckWait:     30 * time.Second,
			MaxDeliver:  10,
			DedupWindow: 2 * time.Minute,
		},
		Watchdog: WatchdogConfig{
			Interval:   60 * time.Second,
			StaleAfter: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
