// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sharesync/config.yaml",
	"/etc/sharesync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every default applied. Defaults are
// loaded first and then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8484,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:      "/data/sharesync.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Share: ShareConfig{
			URL:       "",
			Domain:    "http://localhost:5000/",
			Timeout:   30 * time.Second,
			RateLimit: 10,
			RateBurst: 5,
			Breaker: BreakerConfig{
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      2 * time.Minute,
				FailureRatio: 0.6,
				MinRequests:  10,
			},
		},
		Identifier: IdentifierConfig{
			Enabled: false,
			Timeout: 15 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:    4,
			BackoffBase:   5,
			BackoffFloor:  60 * time.Second,
			BackoffCap:    10 * time.Minute,
			PollInterval:  5 * time.Second,
			LeaseDuration: 2 * time.Minute,
			BatchSize:     50,
			Path:          "/data/retries",
			SyncWrites:    true,
		},
		Messaging: MessagingConfig{
			Backend:        "nats",
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			Host:           "127.0.0.1",
			Port:           4222,
			Stream:         "PREPRINTS",
			Topic:          "preprints.updated",
			DurableName:    "sharesync-dispatcher",
			QueueGroup:     "dispatchers",
			MaxDeliver:     5,
			AckWait:        30 * time.Second,
			RetryCount:     3,
			RetryInterval:  100 * time.Millisecond,
			PoisonTopic:    "preprints.poison",
			CloseTimeout:   30 * time.Second,
		},
		Alerting: AlertingConfig{
			SupportEmail:     "support@osf.io",
			SMTP:             SMTPConfig{Port: 587, From: "sharesync@localhost", UseTLS: true},
			WebhookRateLimit: 1,
		},
		API: APIConfig{
			CORSOrigins:         []string{"*"},
			RateLimitReqs:       100,
			RateLimitWindow:     time.Minute,
			MaxEventsPerRequest: 500,
		},
	}
}

// LoadWithKoanf loads configuration with clear precedence ENV > file > defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

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

// findConfigFile returns the first existing config file, or "".
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

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated strings to slices for known
// slice fields. YAML values are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
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
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"share_url":                  "share.url",
	"share_domain":               "share.domain",
	"domain":                     "share.domain",
	"share_timeout":              "share.timeout",
	"share_rate_limit":           "share.rate_limit",
	"share_rate_burst":           "share.rate_burst",
	"share_breaker_max_requests": "share.breaker.max_requests",
	"share_breaker_interval":     "share.breaker.interval",
	"share_breaker_timeout":      "share.breaker.timeout",

	"identifier_enabled": "identifier.enabled",
	"identifier_url":     "identifier.url",
	"identifier_token":   "identifier.token",
	"identifier_timeout": "identifier.timeout",

	"retry_max_retries":    "retry.max_retries",
	"retry_backoff_base":   "retry.backoff_base",
	"retry_backoff_floor":  "retry.backoff_floor",
	"retry_backoff_cap":    "retry.backoff_cap",
	"retry_poll_interval":  "retry.poll_interval",
	"retry_lease_duration": "retry.lease_duration",
	"retry_batch_size":     "retry.batch_size",
	"retry_path":           "retry.path",
	"retry_sync_writes":    "retry.sync_writes",

	"messaging_backend": "messaging.backend",
	"nats_url":          "messaging.url",
	"nats_embedded":     "messaging.embedded_server",
	"nats_store_dir":    "messaging.store_dir",
	"nats_host":         "messaging.host",
	"nats_port":         "messaging.port",
	"nats_stream":       "messaging.stream",
	"nats_topic":        "messaging.topic",
	"nats_durable_name": "messaging.durable_name",
	"nats_queue_group":  "messaging.queue_group",
	"nats_max_deliver":  "messaging.max_deliver",
	"nats_ack_wait":     "messaging.ack_wait",
	"nats_poison_topic": "messaging.poison_topic",

	"support_email":      "alerting.support_email",
	"smtp_host":          "alerting.smtp.host",
	"smtp_port":          "alerting.smtp.port",
	"smtp_username":      "alerting.smtp.username",
	"smtp_password":      "alerting.smtp.password",
	"smtp_from":          "alerting.smtp.from",
	"smtp_use_tls":       "alerting.smtp.use_tls",
	"alert_webhook_url":  "alerting.webhook_url",
	"alert_webhook_rate": "alerting.webhook_rate_limit",

	"api_jwt_secret":             "api.jwt_secret",
	"cors_origins":               "api.cors_origins",
	"rate_limit_reqs":            "api.rate_limit_reqs",
	"rate_limit_window":          "api.rate_limit_window",
	"disable_rate_limit":         "api.rate_limit_disabled",
	"api_max_events_per_request": "api.max_events_per_request",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Unknown variables return "" and are ignored, so unrelated process
// environment never leaks into the configuration.
//
//	SHARE_URL        -> share.url
//	RETRY_MAX_RETRIES -> retry.max_retries
//	SMTP_HOST        -> alerting.smtp.host
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
