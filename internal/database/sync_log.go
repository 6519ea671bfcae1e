// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sync attempt paths.
const (
	PathSync  = "sync"
	PathRetry = "retry"
)

// maxHistoryLimit caps SyncHistory results.
const maxHistoryLimit = 500

// SyncRecord is one attempt to push a preprint to SHARE.
type SyncRecord struct {
	ID          string        `json:"id"`
	PreprintID  string        `json:"preprint_id"`
	Path        string        `json:"path"`
	ShareType   string        `json:"share_type,omitempty"`
	Outcome     string        `json:"outcome"`
	StatusCode  int           `json:"status_code,omitempty"`
	Retries     int           `json:"retries"`
	NodeCount   int           `json:"node_count"`
	DateUpdated time.Time     `json:"date_updated,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	CreatedAt   time.Time     `json:"created_at"`
}

// RecordSyncOutcome appends an attempt to the sync log, assigning ID and
// CreatedAt when unset.
func (db *DB) RecordSyncOutcome(ctx context.Context, rec *SyncRecord) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var dateUpdated sql.NullTime
	if !rec.DateUpdated.IsZero() {
		dateUpdated = sql.NullTime{Time: rec.DateUpdated.UTC(), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_log (id, preprint_id, path, share_type, outcome, status_code, retries,
		                      node_count, date_updated, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PreprintID, rec.Path, rec.ShareType, rec.Outcome, rec.StatusCode, rec.Retries,
		rec.NodeCount, dateUpdated, rec.Error, rec.Duration.Milliseconds(), rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record sync outcome for %s: %w", rec.PreprintID, err)
	}
	return nil
}

// SyncHistory returns the most recent attempts for a preprint, newest
// first. limit is clamped to [1, 500].
func (db *DB) SyncHistory(ctx context.Context, preprintID string, limit int) ([]SyncRecord, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	limit = min(limit, maxHistoryLimit)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, preprint_id, path, share_type, outcome, status_code, retries,
		       node_count, date_updated, error, duration_ms, created_at
		FROM sync_log
		WHERE preprint_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, preprintID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync history: %w", err)
	}
	defer closeQuietly(rows)

	records := make([]SyncRecord, 0, limit)
	for rows.Next() {
		var (
			rec         SyncRecord
			dateUpdated sql.NullTime
			durationMS  int64
		)
		if err := rows.Scan(&rec.ID, &rec.PreprintID, &rec.Path, &rec.ShareType, &rec.Outcome,
			&rec.StatusCode, &rec.Retries, &rec.NodeCount, &dateUpdated, &rec.Error,
			&durationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		if dateUpdated.Valid {
			rec.DateUpdated = dateUpdated.Time.UTC()
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync history: %w", err)
	}
	return records, nil
}

// LastSentDateUpdated returns the newest date_updated that SHARE accepted
// for a preprint. ok is false when nothing has been accepted yet.
func (db *DB) LastSentDateUpdated(ctx context.Context, preprintID string) (last time.Time, ok bool, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var value sql.NullTime
	err = db.conn.QueryRowContext(ctx, `
		SELECT max(date_updated) FROM sync_log
		WHERE preprint_id = ? AND outcome = 'success'`, preprintID).Scan(&value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last date_updated: %w", err)
	}
	if !value.Valid {
		return time.Time{}, false, nil
	}
	return value.Time.UTC(), true, nil
}
