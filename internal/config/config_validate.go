// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package config

import (
	"fmt"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateDatabase,
		c.validateShare,
		c.validateIdentifier,
		c.validateRetry,
		c.validateMessaging,
		c.validateAlerting,
		c.validateAPI,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got: %s", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL is invalid: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %s", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

// validateShare only checks the SHARE client when sync is enabled.
func (c *Config) validateShare() error {
	if err := validateSiteURL(c.Share.Domain, "SHARE_DOMAIN"); err != nil {
		return err
	}
	if c.Share.URL == "" {
		return nil
	}
	if err := validateSiteURL(c.Share.URL, "SHARE_URL"); err != nil {
		return err
	}
	if c.Share.Timeout <= 0 {
		return fmt.Errorf("SHARE_TIMEOUT must be positive")
	}
	if c.Share.RateLimit < 0 || c.Share.RateBurst < 0 {
		return fmt.Errorf("SHARE_RATE_LIMIT and SHARE_RATE_BURST must not be negative")
	}
	if r := c.Share.Breaker.FailureRatio; r <= 0 || r > 1 {
		return fmt.Errorf("share.breaker.failure_ratio must be in (0, 1], got %v", r)
	}
	return nil
}

func (c *Config) validateIdentifier() error {
	if !c.Identifier.Enabled {
		return nil
	}
	if c.Identifier.URL == "" {
		return fmt.Errorf("IDENTIFIER_URL is required when IDENTIFIER_ENABLED=true")
	}
	if err := validateEndpointURL(c.Identifier.URL, "IDENTIFIER_URL"); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRetry() error {
	r := c.Retry
	if r.MaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must not be negative")
	}
	if r.BackoffBase < 1 {
		return fmt.Errorf("RETRY_BACKOFF_BASE must be at least 1, got %v", r.BackoffBase)
	}
	if r.BackoffFloor < 0 || r.BackoffCap <= 0 {
		return fmt.Errorf("RETRY_BACKOFF_FLOOR must not be negative and RETRY_BACKOFF_CAP must be positive")
	}
	if r.PollInterval <= 0 || r.LeaseDuration <= 0 {
		return fmt.Errorf("RETRY_POLL_INTERVAL and RETRY_LEASE_DURATION must be positive")
	}
	if r.BatchSize < 1 {
		return fmt.Errorf("RETRY_BATCH_SIZE must be at least 1")
	}
	if r.Path == "" {
		return fmt.Errorf("RETRY_PATH is required")
	}
	return nil
}

func (c *Config) validateMessaging() error {
	m := c.Messaging
	switch m.Backend {
	case "memory":
		return nil
	case "nats":
	default:
		return fmt.Errorf("MESSAGING_BACKEND must be nats or memory, got: %s", m.Backend)
	}
	if err := validateNATSURL(m.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if m.Topic == "" || m.Stream == "" {
		return fmt.Errorf("NATS_TOPIC and NATS_STREAM are required")
	}
	if m.EmbeddedServer && m.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required for the embedded server")
	}
	if m.MaxDeliver < 1 {
		return fmt.Errorf("NATS_MAX_DELIVER must be at least 1")
	}
	return nil
}

func (c *Config) validateAlerting() error {
	a := c.Alerting
	if a.SMTP.Host != "" {
		if a.SupportEmail == "" || !strings.Contains(a.SupportEmail, "@") {
			return fmt.Errorf("SUPPORT_EMAIL must be a valid address when SMTP_HOST is set")
		}
		if a.SMTP.Port < 1 || a.SMTP.Port > 65535 {
			return fmt.Errorf("SMTP_PORT must be between 1 and 65535, got %d", a.SMTP.Port)
		}
	}
	if a.WebhookURL != "" {
		if err := validateEndpointURL(a.WebhookURL, "ALERT_WEBHOOK_URL"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.Server.Environment == "production" && len(c.API.JWTSecret) < 32 {
		return fmt.Errorf("API_JWT_SECRET must be at least 32 characters in production")
	}
	if !c.API.RateLimitDisabled && (c.API.RateLimitReqs < 1 || c.API.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.API.MaxEventsPerRequest < 1 {
		return fmt.Errorf("API_MAX_EVENTS_PER_REQUEST must be at least 1")
	}
	return nil
}
