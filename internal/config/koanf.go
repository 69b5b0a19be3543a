// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mentio/config.yaml",
	"/etc/mentio/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config
// file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML config file (if present)
//  3. Environment variables: override any setting
//
// Precedence: ENV > File > Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// OAUTH_CLIENT_ID -> oauth.client_id, HTTP_PORT -> server.port
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values for slice fields
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when sourced from environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"oauth.scopes",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file or defaults)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
// Unmapped variables are skipped so random environment noise cannot pollute
// the configuration.
var envMappings = map[string]string{
	// Server mappings
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",

	// Upstream API mappings
	"stream_url":       "upstream.stream_url",
	"rules_url":        "upstream.rules_url",
	"reply_url":        "upstream.reply_url",
	"upstream_timeout": "upstream.request_timeout",
	"reply_rate":       "upstream.reply_rate",
	"reply_burst":      "upstream.reply_burst",

	// OAuth mappings
	"oauth_client_id":        "oauth.client_id",
	"oauth_client_secret":    "oauth.client_secret",
	"oauth_redirect_uri":     "oauth.redirect_uri",
	"oauth_scopes":           "oauth.scopes",
	"oauth_authorize_url":    "oauth.authorize_url",
	"oauth_token_url":        "oauth.token_url",
	"fallback_refresh_token": "oauth.fallback_refresh_token",

	// Reply content mappings
	"reply_text": "reply.text",

	// Store mappings
	"store_path":        "store.path",
	"store_gc_interval": "store.gc_interval",

	// Queue mappings
	"nats_embedded":     "queue.embedded",
	"nats_store_dir":    "queue.store_dir",
	"nats_url":          "queue.url",
	"nats_max_memory":   "queue.max_memory",
	"nats_max_store":    "queue.max_store",
	"nats_stream":       "queue.stream_name",
	"nats_subject":      "queue.subject",
	"nats_durable":      "queue.durable",
	"nats_ack_wait":     "queue.ack_wait",
	"nats_max_deliver":  "queue.max_deliver",
	"nats_dedup_window": "queue.dedup_window",

	// Watchdog mappings
	"watchdog_interval":    "watchdog.interval",
	"watchdog_stale_after": "watchdog.stale_after",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config
// paths via the explicit mapping table.
//
// Examples:
//   - OAUTH_CLIENT_ID -> oauth.client_id
//   - STREAM_URL -> upstream.stream_url
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys return empty string to be skipped.
	return ""
}
