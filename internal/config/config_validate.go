// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateUpstream(); err != nil {
		return err
	}

	if err := c.validateOAuth(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if err := c.validateWatchdog(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateServer validates the HTTP server configuration.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP_READ_TIMEOUT and HTTP_WRITE_TIMEOUT must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// validateUpstream validates the upstream API endpoint configuration.
func (c *Config) validateUpstream() error {
	if err := validateEndpointURL(c.Upstream.StreamURL, "STREAM_URL"); err != nil {
		return err
	}
	if err := validateEndpointURL(c.Upstream.RulesURL, "RULES_URL"); err != nil {
		return err
	}
	if err := validateEndpointURL(c.Upstream.ReplyURL, "REPLY_URL"); err != nil {
		return err
	}
	if c.Upstream.RequestTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.Upstream.ReplyRate <= 0 {
		return fmt.Errorf("REPLY_RATE must be positive, got %v", c.Upstream.ReplyRate)
	}
	if c.Upstream.ReplyBurst < 1 {
		return fmt.Errorf("REPLY_BURST must be at least 1, got %d", c.Upstream.ReplyBurst)
	}
	return nil
}

// validateOAuth validates the OAuth client configuration.
// ClientID and ClientSecret are required: without them neither the
// authorization URL nor the token endpoint Basic auth can be formed.
func (c *Config) validateOAuth() error {
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("OAUTH_CLIENT_ID is required")
	}
	if c.OAuth.ClientSecret == "" {
		return fmt.Errorf("OAUTH_CLIENT_SECRET is required")
	}
	if c.OAuth.RedirectURI == "" {
		return fmt.Errorf("OAUTH_REDIRECT_URI is required")
	}
	if err := validateEndpointURL(c.OAuth.RedirectURI, "OAUTH_REDIRECT_URI"); err != nil {
		return err
	}
	if err := validateEndpointURL(c.OAuth.AuthorizeURL, "OAUTH_AUTHORIZE_URL"); err != nil {
		return err
	}
	if err := validateEndpointURL(c.OAuth.TokenURL, "OAUTH_TOKEN_URL"); err != nil {
		return err
	}
	if len(c.OAuth.Scopes) == 0 {
		return fmt.Errorf("OAUTH_SCOPES must contain at least one scope")
	}
	return nil
}

// validateStore validates the credential store configuration.
func (c *Config) validateStore() error {
	if c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required")
	}
	if c.Store.GCInterval <= 0 {
		return fmt.Errorf("STORE_GC_INTERVAL must be positive")
	}
	return nil
}

// validateQueue validates the NATS JetStream queue configuration.
func (c *Config) validateQueue() error {
	if !c.Queue.Embedded {
		if err := validateNATSURL(c.Queue.URL); err != nil {
			return fmt.Errorf("NATS_URL is invalid: %w", err)
		}
	}
	if c.Queue.Embedded && c.Queue.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	if c.Queue.StreamName == "" {
		return fmt.Errorf("NATS_STREAM is required")
	}
	if c.Queue.Subject == "" {
		return fmt.Errorf("NATS_SUBJECT is required")
	}
	if c.Queue.Durable == "" {
		return fmt.Errorf("NATS_DURABLE is required")
	}
	if c.Queue.AckWait <= 0 {
		return fmt.Errorf("NATS_ACK_WAIT must be positive")
	}
	if c.Queue.MaxDeliver < 1 {
		return fmt.Errorf("NATS_MAX_DELIVER must be at least 1, got %d", c.Queue.MaxDeliver)
	}
	if c.Queue.DedupWindow <= 0 {
		return fmt.Errorf("NATS_DEDUP_WINDOW must be positive")
	}
	return nil
}

// validateWatchdog validates the liveness watchdog configuration.
func (c *Config) validateWatchdog() error {
	if c.Watchdog.Interval <= 0 {
		return fmt.Errorf("WATCHDOG_INTERVAL must be positive")
	}
	if c.Watchdog.StaleAfter <= 0 {
		return fmt.Errorf("WATCHDOG_STALE_AFTER must be positive")
	}
	return nil
}

// validateLogging validates the logging configuration.
func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

// validateEndpointURL validates that a URL is a well-formed HTTP/HTTPS
// endpoint. Paths are allowed; the upstream endpoints all carry them.
func validateEndpointURL(rawURL, fieldName string) error {
	if rawURL == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}

	return nil
}

// validateNATSURL validates that a NATS URL is properly formatted.
// Supports nats://, tls://, and ws:// schemes with optional ports.
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222, nats.example.com)")
	}

	return nil
}
