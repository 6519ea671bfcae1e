// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package identifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sharesync/internal/config"
)

func TestHTTPRequester_RequestUpdate(t *testing.T) {
	var got updateRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	r := NewHTTPRequester(&config.IdentifierConfig{
		Enabled: true,
		URL:     server.URL,
		Token:   "svc-token",
		Timeout: time.Second,
	})
	if err := r.RequestUpdate(context.Background(), "abc12", "doi", StatusPublic); err != nil {
		t.Fatalf("RequestUpdate() error = %v", err)
	}
	if got.PreprintID != "abc12" || got.Category != "doi" || got.Status != StatusPublic {
		t.Errorf("body = %+v", got)
	}
	if auth != "Bearer svc-token" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestHTTPRequester_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	r := NewHTTPRequester(&config.IdentifierConfig{Enabled: true, URL: server.URL, Timeout: time.Second})
	if err := r.RequestUpdate(context.Background(), "abc12", "doi", StatusPublic); err == nil {
		t.Error("RequestUpdate() should fail on 502")
	}
}

func TestNewHTTPRequester_Disabled(t *testing.T) {
	if r := NewHTTPRequester(&config.IdentifierConfig{Enabled: false, URL: "http://x"}); r != nil {
		t.Error("disabled config should yield nil requester")
	}
	if r := NewHTTPRequester(&config.IdentifierConfig{Enabled: true}); r != nil {
		t.Error("config without URL should yield nil requester")
	}
}
