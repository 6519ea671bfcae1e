// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package database

import (
	"context"
	"testing"
	"time"
)

func TestRecordAndListSyncHistory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []*SyncRecord{
		{PreprintID: "abc12", Path: PathSync, Outcome: "transient", StatusCode: 503, CreatedAt: base},
		{PreprintID: "abc12", Path: PathRetry, Outcome: "success", StatusCode: 200, Retries: 1,
			NodeCount: 9, DateUpdated: base, Duration: 150 * time.Millisecond, CreatedAt: base.Add(time.Minute)},
		{PreprintID: "other", Path: PathSync, Outcome: "success", StatusCode: 200, CreatedAt: base},
	}
	for _, rec := range records {
		if err := db.RecordSyncOutcome(ctx, rec); err != nil {
			t.Fatalf("RecordSyncOutcome() error = %v", err)
		}
		if rec.ID == "" {
			t.Error("RecordSyncOutcome() did not assign an id")
		}
	}

	history, err := db.SyncHistory(ctx, "abc12", 10)
	if err != nil {
		t.Fatalf("SyncHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("SyncHistory() len = %d, want 2", len(history))
	}
	newest := history[0]
	if newest.Path != PathRetry || newest.Retries != 1 || newest.NodeCount != 9 {
		t.Errorf("newest record = %+v", newest)
	}
	if newest.Duration != 150*time.Millisecond {
		t.Errorf("Duration = %v, want 150ms", newest.Duration)
	}
	if !newest.DateUpdated.Equal(base) {
		t.Errorf("DateUpdated = %v, want %v", newest.DateUpdated, base)
	}
	if !history[1].DateUpdated.IsZero() {
		t.Errorf("failed attempt DateUpdated = %v, want zero", history[1].DateUpdated)
	}

	limited, err := db.SyncHistory(ctx, "abc12", 1)
	if err != nil {
		t.Fatalf("SyncHistory(limit=1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("SyncHistory(limit=1) len = %d", len(limited))
	}
}

func TestLastSentDateUpdated(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.LastSentDateUpdated(ctx, "abc12"); err != nil || ok {
		t.Fatalf("LastSentDateUpdated() on empty log = ok %v, err %v", ok, err)
	}

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	for _, rec := range []*SyncRecord{
		{PreprintID: "abc12", Path: PathSync, Outcome: "success", DateUpdated: early},
		{PreprintID: "abc12", Path: PathSync, Outcome: "success", DateUpdated: late},
		{PreprintID: "abc12", Path: PathSync, Outcome: "permanent", DateUpdated: late.Add(time.Hour)},
	} {
		if err := db.RecordSyncOutcome(ctx, rec); err != nil {
			t.Fatalf("RecordSyncOutcome() error = %v", err)
		}
	}

	got, ok, err := db.LastSentDateUpdated(ctx, "abc12")
	if err != nil || !ok {
		t.Fatalf("LastSentDateUpdated() = ok %v, err %v", ok, err)
	}
	if !got.Equal(late) {
		t.Errorf("LastSentDateUpdated() = %v, want %v (failed attempts ignored)", got, late)
	}
}
