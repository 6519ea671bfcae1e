// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package eventprocessor

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/sharesync/internal/preprint"
)

func TestIntegration_EmbeddedJetStream(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testMessagingConfig()
	cfg.Backend = BackendNATS
	cfg.EmbeddedServer = true
	cfg.Host = "127.0.0.1"
	cfg.Port = -1
	cfg.StoreDir = t.TempDir()

	srv, err := NewEmbeddedServer(cfg)
	if err != nil {
		t.Fatalf("NewEmbeddedServer: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	if !srv.IsRunning() || !srv.JetStreamEnabled() {
		t.Fatal("embedded server not running with JetStream")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := EnsureStream(ctx, srv.ClientURL(), cfg); err != nil {
		t.Fatalf("EnsureStream: %v", err)
	}
	// Idempotent.
	if err := EnsureStream(ctx, srv.ClientURL(), cfg); err != nil {
		t.Fatalf("EnsureStream (second call): %v", err)
	}

	transport, err := NewTransport(cfg, srv.ClientURL(), nil)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	t.Cleanup(func() { _ = transport.Close() })

	handler := &recordingHandler{}
	consumer, err := NewConsumer(cfg, transport, transport.Publisher, handler, nil)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Serve(runCtx) }()
	t.Cleanup(func() {
		stop()
		<-done
	})

	select {
	case <-consumer.Running():
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not start")
	}

	pub, err := NewEventPublisher(transport.Publisher, cfg.Topic)
	if err != nil {
		t.Fatalf("NewEventPublisher: %v", err)
	}
	events := []preprint.Event{
		{PreprintID: "js1", UpdateShare: true},
		{PreprintID: "js2", SavedFields: preprint.NewFieldSet("title")},
	}
	if err := pub.Publish(context.Background(), events...); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool {
		got, _ := handler.snapshot()
		return len(got) == len(events)
	})

	got, _ := handler.snapshot()
	seen := map[string]bool{}
	for _, e := range got {
		seen[e.PreprintID] = true
	}
	for _, e := range events {
		if !seen[e.PreprintID] {
			t.Errorf("event %s not delivered", e.PreprintID)
		}
	}
}
