// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package config loads sharesync configuration with Koanf v2.
//
// Sources are layered in increasing precedence:
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (config.yaml, or the path in CONFIG_PATH)
//  3. Environment variables (see envTransformFunc for the mapping)
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	Share      ShareConfig      `koanf:"share"`
	Identifier IdentifierConfig `koanf:"identifier"`
	Retry      RetryConfig      `koanf:"retry"`
	Messaging  MessagingConfig  `koanf:"messaging"`
	Alerting   AlertingConfig   `koanf:"alerting"`
	API        APIConfig        `koanf:"api"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// Environment is "development" or "production". Production refuses to
	// start without an ingest JWT secret.
	Environment string `koanf:"environment"`
}

// LoggingConfig mirrors logging.Config for file and env loading.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig configures the DuckDB read model.
type DatabaseConfig struct {
	// Path is the DuckDB file; ":memory:" is accepted for tests.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// ShareConfig configures the outbound SHARE client.
type ShareConfig struct {
	// URL is the SHARE base URL including the trailing slash. When empty,
	// metadata sync is disabled and dispatches are no-ops.
	URL string `koanf:"url"`

	// Domain is the public site root used for canonical preprint URLs.
	Domain string `koanf:"domain"`

	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	RateBurst int           `koanf:"rate_burst"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the gobreaker circuit breaker around SHARE.
type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	FailureRatio float64       `koanf:"failure_ratio"`
	MinRequests  uint32        `koanf:"min_requests"`
}

// IdentifierConfig configures the DOI metadata refresh service.
type IdentifierConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// RetryConfig configures the retry policy and the durable retry queue.
type RetryConfig struct {
	MaxRetries    int           `koanf:"max_retries"`
	BackoffBase   float64       `koanf:"backoff_base"`
	BackoffFloor  time.Duration `koanf:"backoff_floor"`
	BackoffCap    time.Duration `koanf:"backoff_cap"`
	PollInterval  time.Duration `koanf:"poll_interval"`
	LeaseDuration time.Duration `koanf:"lease_duration"`
	BatchSize     int           `koanf:"batch_size"`
	Path          string        `koanf:"path"`
	SyncWrites    bool          `koanf:"sync_writes"`
}

// MessagingConfig configures the post-commit event transport.
type MessagingConfig struct {
	// Backend is "nats" (JetStream) or "memory" (in-process gochannel).
	Backend        string        `koanf:"backend"`
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	Stream         string        `koanf:"stream"`
	Topic          string        `koanf:"topic"`
	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
	MaxDeliver     int           `koanf:"max_deliver"`
	AckWait        time.Duration `koanf:"ack_wait"`
	RetryCount     int           `koanf:"retry_count"`
	RetryInterval  time.Duration `koanf:"retry_interval"`
	PoisonTopic    string        `koanf:"poison_topic"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`
}

// AlertingConfig configures operator alerts for failed syncs.
type AlertingConfig struct {
	SupportEmail     string     `koanf:"support_email"`
	SMTP             SMTPConfig `koanf:"smtp"`
	WebhookURL       string     `koanf:"webhook_url"`
	WebhookRateLimit float64    `koanf:"webhook_rate_limit"`
}

// SMTPConfig configures the email alert channel. Email is disabled when
// Host is empty.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	UseTLS   bool   `koanf:"use_tls"`
}

// APIConfig configures the ingest and operations API.
type APIConfig struct {
	JWTSecret           string        `koanf:"jwt_secret"`
	CORSOrigins         []string      `koanf:"cors_origins"`
	RateLimitReqs       int           `koanf:"rate_limit_reqs"`
	RateLimitWindow     time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled   bool          `koanf:"rate_limit_disabled"`
	MaxEventsPerRequest int           `koanf:"max_events_per_request"`
}

// Load reads configuration from defaults, the optional config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
