// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package share

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sharesync/internal/config"
	"github.com/tomtom215/sharesync/internal/graph"
)

func testConfig(url string) *config.ShareConfig {
	return &config.ShareConfig{
		URL:     url,
		Timeout: 2 * time.Second,
		Breaker: config.BreakerConfig{
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      time.Minute,
			FailureRatio: 0.6,
			MinRequests:  3,
		},
	}
}

func testEnvelope() *Envelope {
	g := graph.New()
	root := g.AddWithID("preprint", "abc12", graph.Fields{"title": "A preprint"})
	return NewEnvelope(g.Closure(root))
}

func TestClient_SendRequestShape(t *testing.T) {
	var (
		gotPath, gotAuth, gotType string
		gotBody                   map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL + "/"))
	resp, err := client.Send(context.Background(), "tok-123", testEnvelope())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("StatusCode = %d, want 202", resp.StatusCode)
	}
	if gotPath != "/api/v2/normalizeddata/" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != ContentType {
		t.Errorf("Content-Type = %q", gotType)
	}

	data, _ := gotBody["data"].(map[string]any)
	if data["type"] != NormalizedDataType {
		t.Errorf("data.type = %v", data["type"])
	}
	attrs, _ := data["attributes"].(map[string]any)
	if tasks, ok := attrs["tasks"].([]any); !ok || len(tasks) != 0 {
		t.Errorf("attributes.tasks = %v, want []", attrs["tasks"])
	}
	if raw, present := attrs["raw"]; !present || raw != nil {
		t.Errorf("attributes.raw = %v (present=%t), want null", raw, present)
	}
	doc, _ := attrs["data"].(map[string]any)
	nodes, _ := doc["@graph"].([]any)
	if len(nodes) != 1 {
		t.Fatalf("@graph has %d nodes, want 1", len(nodes))
	}
	node, _ := nodes[0].(map[string]any)
	id, _ := node["@id"].(string)
	if node["@type"] != "preprint" || !strings.HasPrefix(id, "_:") {
		t.Errorf("node = %v, want a preprint with a blank node id", node)
	}
}

func TestClient_SendClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Outcome
	}{
		{"ok", http.StatusOK, OutcomeSuccess},
		{"created", http.StatusCreated, OutcomeSuccess},
		{"bad request", http.StatusBadRequest, OutcomePermanent},
		{"unauthorized", http.StatusUnauthorized, OutcomePermanent},
		{"server error", http.StatusInternalServerError, OutcomeTransient},
		{"bad gateway", http.StatusBadGateway, OutcomeTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"errors":[{"detail":"nope"}]}`))
			}))
			defer server.Close()

			_, err := NewClient(testConfig(server.URL+"/")).Send(context.Background(), "tok", testEnvelope())
			if got := Classify(err); got != tt.want {
				t.Errorf("Classify() = %s, want %s (err=%v)", got, tt.want, err)
			}
			if tt.want != OutcomeSuccess {
				if StatusCode(err) != tt.status {
					t.Errorf("StatusCode(err) = %d, want %d", StatusCode(err), tt.status)
				}
				if !strings.Contains(string(ResponseBody(err)), "nope") {
					t.Errorf("ResponseBody(err) = %q", ResponseBody(err))
				}
			}
		})
	}
}

func TestClient_ConnectionErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL + "/"
	server.Close()

	_, err := NewClient(testConfig(url)).Send(context.Background(), "tok", testEnvelope())
	if err == nil {
		t.Fatal("Send() to closed server should fail")
	}
	if got := Classify(err); got != OutcomeTransient {
		t.Errorf("Classify() = %s, want transient", got)
	}
}

func TestClient_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig(server.URL + "/")
	cfg.Timeout = 50 * time.Millisecond
	_, err := NewClient(cfg).Send(context.Background(), "tok", testEnvelope())
	if got := Classify(err); got != OutcomeTransient {
		t.Errorf("Classify() = %s, want transient (err=%v)", got, err)
	}
}

func TestClient_BreakerOpensOnServerErrorsOnly(t *testing.T) {
	var status atomic.Int32
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL + "/"))

	status.Store(http.StatusBadRequest)
	for i := 0; i < 5; i++ {
		_, _ = client.Send(context.Background(), "tok", testEnvelope())
	}
	if client.BreakerState() != "closed" {
		t.Fatalf("breaker = %s after 4xx responses, want closed", client.BreakerState())
	}

	status.Store(http.StatusServiceUnavailable)
	for i := 0; i < 10; i++ {
		_, _ = client.Send(context.Background(), "tok", testEnvelope())
	}
	if client.BreakerState() != "open" {
		t.Fatalf("breaker = %s after 5xx responses, want open", client.BreakerState())
	}

	before := hits.Load()
	_, err := client.Send(context.Background(), "tok", testEnvelope())
	if !errors.Is(err, gobreakerOpen) {
		t.Errorf("Send() with open breaker error = %v", err)
	}
	if Classify(err) != OutcomeTransient {
		t.Errorf("open breaker should classify as transient")
	}
	if hits.Load() != before {
		t.Error("open breaker should not reach the server")
	}
}

func TestClient_Disabled(t *testing.T) {
	client := NewClient(testConfig(""))
	if client.Enabled() {
		t.Fatal("client without URL should be disabled")
	}
	if _, err := client.Send(context.Background(), "tok", testEnvelope()); !errors.Is(err, ErrDisabled) {
		t.Errorf("Send() error = %v, want ErrDisabled", err)
	}
}

func TestClient_EndpointJoin(t *testing.T) {
	for _, base := range []string{"https://share.osf.io/", "https://share.osf.io"} {
		if got := NewClient(testConfig(base)).Endpoint(); got != "https://share.osf.io/api/v2/normalizeddata/" {
			t.Errorf("Endpoint(%q) = %q", base, got)
		}
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(testConfig(server.URL+"/")).Send(ctx, "tok", testEnvelope())
	if err == nil {
		t.Fatal("Send() with cancelled context should fail")
	}
}
