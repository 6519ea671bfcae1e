// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package identifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/sharesync/internal/preprint"
)

func publishedSnapshot() *preprint.Snapshot {
	return &preprint.Snapshot{
		PreprintID:  "abc12",
		Node:        &preprint.Container{ID: "node1", Public: true},
		Service:     &preprint.Provider{ID: "osf"},
		IsPublished: true,
		PublishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type fakeRequester struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeRequester) RequestUpdate(_ context.Context, preprintID, category, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, preprintID+"/"+category+"/"+status)
	return f.err
}

func TestShouldUpdate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*preprint.Snapshot)
		oldSubjects []string
		saved       preprint.FieldSet
		want        bool
	}{
		{"plain save", func(*preprint.Snapshot) {}, nil, nil, true},
		{"unrelated saved fields", func(*preprint.Snapshot) {}, nil, preprint.NewFieldSet("title"), true},
		{"no container", func(s *preprint.Snapshot) { s.Node = nil }, nil, nil, false},
		{"doi just created", func(*preprint.Snapshot) {}, nil, preprint.NewFieldSet(preprint.FieldDOICreated), false},
		{"subjects changed", func(*preprint.Snapshot) {}, []string{"s1"}, nil, false},
		{"qa test preprint", func(s *preprint.Snapshot) { s.Node.Tags = []string{preprint.QATestTag} }, nil, nil, false},
		{"unpublished still refreshes", func(s *preprint.Snapshot) { s.IsPublished = false }, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := publishedSnapshot()
			tt.mutate(s)
			if got := ShouldUpdate(s, tt.oldSubjects, tt.saved); got != tt.want {
				t.Errorf("ShouldUpdate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	s := publishedSnapshot()
	if got := Status(s); got != StatusPublic {
		t.Errorf("Status(published) = %q, want public", got)
	}
	s.IsDeleted = true
	if got := Status(s); got != StatusUnavailable {
		t.Errorf("Status(deleted) = %q, want unavailable", got)
	}
}

func TestTrigger_Refresh(t *testing.T) {
	t.Parallel()

	req := &fakeRequester{}
	trigger := NewTrigger(req)
	if !trigger.Refresh(context.Background(), publishedSnapshot()) {
		t.Fatal("Refresh() = false, want true")
	}
	if len(req.calls) != 1 || req.calls[0] != "abc12/doi/public" {
		t.Errorf("calls = %v", req.calls)
	}
}

func TestTrigger_RefreshSwallowsErrors(t *testing.T) {
	t.Parallel()

	req := &fakeRequester{err: errors.New("connection refused")}
	trigger := NewTrigger(req)
	if trigger.Refresh(context.Background(), publishedSnapshot()) {
		t.Error("Refresh() should report failure")
	}
	if len(req.calls) != 1 {
		t.Errorf("requester called %d times, want 1", len(req.calls))
	}
}

func TestTrigger_Disabled(t *testing.T) {
	t.Parallel()

	var nilTrigger *Trigger
	if nilTrigger.Refresh(context.Background(), publishedSnapshot()) {
		t.Error("nil trigger should not refresh")
	}
	if NewTrigger(nil).MaybeRefresh(context.Background(), publishedSnapshot(), nil, nil) {
		t.Error("trigger without requester should not refresh")
	}
}

func TestTrigger_MaybeRefresh(t *testing.T) {
	t.Parallel()

	req := &fakeRequester{}
	trigger := NewTrigger(req)
	ctx := context.Background()

	trigger.MaybeRefresh(ctx, publishedSnapshot(), []string{"s1"}, nil)
	if len(req.calls) != 0 {
		t.Fatalf("subject-only change should not refresh, got %v", req.calls)
	}
	trigger.MaybeRefresh(ctx, publishedSnapshot(), nil, nil)
	if len(req.calls) != 1 {
		t.Errorf("calls = %v, want one refresh", req.calls)
	}
}
