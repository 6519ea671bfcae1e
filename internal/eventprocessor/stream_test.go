// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package eventprocessor

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

type fakeJetStream struct {
	streamErr error
	created   []jetstream.StreamConfig
	updated   []jetstream.StreamConfig
}

func (f *fakeJetStream) Stream(context.Context, string) (jetstream.Stream, error) {
	return nil, f.streamErr
}

func (f *fakeJetStream) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.created = append(f.created, cfg)
	return nil, nil
}

func (f *fakeJetStream) UpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.updated = append(f.updated, cfg)
	return nil, nil
}

func TestStreamConfigFromSettings(t *testing.T) {
	t.Parallel()

	cfg := testMessagingConfig()
	got := StreamConfigFromSettings(cfg)
	if got.Name != "PREPRINTS" {
		t.Errorf("Name = %q", got.Name)
	}
	want := []string{"preprints.updated", "preprints.poison"}
	if !slices.Equal(got.Subjects, want) {
		t.Errorf("Subjects = %v, want %v", got.Subjects, want)
	}

	cfg.PoisonTopic = ""
	if got := StreamConfigFromSettings(cfg); len(got.Subjects) != 1 {
		t.Errorf("Subjects without poison topic = %v", got.Subjects)
	}
}

func TestEnsureStream(t *testing.T) {
	t.Parallel()

	streamCfg := &StreamConfig{Name: "PREPRINTS", Subjects: []string{"preprints.updated"}, MaxAge: time.Hour, DuplicateWindow: time.Minute}

	tests := []struct {
		name        string
		streamErr   error
		wantCreated int
		wantUpdated int
		wantErr     bool
	}{
		{"creates missing stream", jetstream.ErrStreamNotFound, 1, 0, false},
		{"updates existing stream", nil, 0, 1, false},
		{"lookup failure", errors.New("nats: timeout"), 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			js := &fakeJetStream{streamErr: tt.streamErr}
			initializer, err := NewStreamInitializer(js, streamCfg)
			if err != nil {
				t.Fatalf("NewStreamInitializer: %v", err)
			}

			_, err = initializer.EnsureStream(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("EnsureStream() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(js.created) != tt.wantCreated || len(js.updated) != tt.wantUpdated {
				t.Fatalf("created=%d updated=%d, want %d/%d", len(js.created), len(js.updated), tt.wantCreated, tt.wantUpdated)
			}
			for _, c := range append(js.created, js.updated...) {
				if c.Duplicates != time.Minute || c.Storage != jetstream.FileStorage {
					t.Errorf("stream config = %+v", c)
				}
			}
		})
	}
}

func TestNewStreamInitializerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewStreamInitializer(nil, &StreamConfig{Name: "X", Subjects: []string{"x"}}); err == nil {
		t.Error("expected error for nil JetStream")
	}
	if _, err := NewStreamInitializer(&fakeJetStream{}, &StreamConfig{Name: "X"}); err == nil {
		t.Error("expected error for missing subjects")
	}
}
