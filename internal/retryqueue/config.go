// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package retryqueue

import (
	"time"

	"github.com/tomtom215/sharesync/internal/config"
)

// Config holds queue storage and worker settings.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	InMemory   bool
	SyncWrites bool

	// PollInterval is the time between scans for due tasks.
	PollInterval time.Duration

	// LeaseDuration bounds how long a claimed task is hidden from other
	// workers. It must exceed the longest expected attempt.
	LeaseDuration time.Duration

	// BatchSize caps the tasks handled per scan.
	BatchSize int

	// CloseTimeout bounds Close.
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:          "/data/retries",
		SyncWrites:    true,
		PollInterval:  5 * time.Second,
		LeaseDuration: 2 * time.Minute,
		BatchSize:     50,
		CloseTimeout:  30 * time.Second,
	}
}

// ConfigFromSettings maps the retry section of the application config.
func ConfigFromSettings(cfg *config.RetryConfig) Config {
	c := DefaultConfig()
	c.Path = cfg.Path
	c.SyncWrites = cfg.SyncWrites
	c.PollInterval = cfg.PollInterval
	c.LeaseDuration = cfg.LeaseDuration
	c.BatchSize = cfg.BatchSize
	return c
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return &ConfigError{Field: "Path", Message: "retry queue path is required"}
	}
	if c.PollInterval < time.Second {
		return &ConfigError{Field: "PollInterval", Message: "must be at least 1 second"}
	}
	if c.LeaseDuration < 10*time.Second {
		return &ConfigError{Field: "LeaseDuration", Message: "must be at least 10 seconds"}
	}
	if c.BatchSize < 1 {
		return &ConfigError{Field: "BatchSize", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "retryqueue config error: " + e.Field + " " + e.Message
}
