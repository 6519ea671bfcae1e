// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Share.URL != "" {
		t.Errorf("Share.URL should be empty by default, got %q", cfg.Share.URL)
	}
	if cfg.Retry.MaxRetries != 4 {
		t.Errorf("Retry.MaxRetries = %d, want 4", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BackoffCap != 10*time.Minute {
		t.Errorf("Retry.BackoffCap = %v, want 10m", cfg.Retry.BackoffCap)
	}
	if cfg.Retry.BackoffFloor != time.Minute {
		t.Errorf("Retry.BackoffFloor = %v, want 1m", cfg.Retry.BackoffFloor)
	}
	if cfg.Messaging.Topic != "preprints.updated" {
		t.Errorf("Messaging.Topic = %q, want preprints.updated", cfg.Messaging.Topic)
	}
	if cfg.Server.Port != 8484 {
		t.Errorf("Server.Port = %d, want 8484", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration should validate: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"SHARE_URL", "share.url"},
		{"DOMAIN", "share.domain"},
		{"RETRY_MAX_RETRIES", "retry.max_retries"},
		{"SMTP_HOST", "alerting.smtp.host"},
		{"NATS_URL", "messaging.url"},
		{"CORS_ORIGINS", "api.cors_origins"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoadWithKoanfLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
share:
  url: "https://share.example.org/"
  domain: "https://osf.example.org/"
retry:
  max_retries: 2
  backoff_base: 3
messaging:
  backend: memory
api:
  cors_origins:
    - https://a.example.org
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("RETRY_MAX_RETRIES", "3")
	t.Setenv("SHARE_TIMEOUT", "5s")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Share.URL != "https://share.example.org/" {
		t.Errorf("Share.URL = %q, want value from file", cfg.Share.URL)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Retry.MaxRetries = %d, env should override file", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BackoffBase != 3 {
		t.Errorf("Retry.BackoffBase = %v, want 3", cfg.Retry.BackoffBase)
	}
	if cfg.Share.Timeout != 5*time.Second {
		t.Errorf("Share.Timeout = %v, want 5s", cfg.Share.Timeout)
	}
	if cfg.Messaging.Backend != "memory" {
		t.Errorf("Messaging.Backend = %q, want memory", cfg.Messaging.Backend)
	}
	if len(cfg.API.CORSOrigins) != 1 || cfg.API.CORSOrigins[0] != "https://a.example.org" {
		t.Errorf("API.CORSOrigins = %v", cfg.API.CORSOrigins)
	}
	if cfg.Retry.PollInterval != 5*time.Second {
		t.Errorf("Retry.PollInterval = %v, default should survive", cfg.Retry.PollInterval)
	}
}

func TestLoadWithKoanfCommaSeparatedSlices(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CORS_ORIGINS", "https://a.example.org, https://b.example.org")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if len(cfg.API.CORSOrigins) != 2 || cfg.API.CORSOrigins[1] != "https://b.example.org" {
		t.Errorf("API.CORSOrigins = %v, want two trimmed origins", cfg.API.CORSOrigins)
	}
}

func TestLoadWithKoanfRejectsInvalid(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SHARE_URL", "ftp://share.example.org/")

	if _, err := LoadWithKoanf(); err == nil {
		t.Fatal("expected validation error for ftp SHARE_URL")
	}
}
