// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package alerting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sharesync/internal/config"
)

func TestWebhookSink_Send(t *testing.T) {
	var got WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(&config.AlertingConfig{WebhookURL: server.URL})
	if err := sink.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.EventType != "share_sync_alert" || got.Source != "sharesync" {
		t.Errorf("payload = %+v", got)
	}
	if got.Alert == nil || got.Alert.PreprintID != "abc12" || got.Alert.StatusCode != 400 {
		t.Errorf("payload alert = %+v", got.Alert)
	}
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(&config.AlertingConfig{WebhookURL: server.URL, WebhookRateLimit: 100})
	if err := sink.Send(context.Background(), testAlert()); err == nil {
		t.Error("Send() should fail on 500")
	}
}

func TestWebhookSink_Disabled(t *testing.T) {
	if NewWebhookSink(&config.AlertingConfig{}) != nil {
		t.Error("sink without URL should be nil")
	}
}
