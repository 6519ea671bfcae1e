// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package database

import (
	"context"
	"fmt"
)

// Join tables carry no primary key: DuckDB rejects a delete followed by a
// re-insert of the same key inside one transaction, and the replace
// helpers do exactly that.
var tableQueries = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		access_token TEXT NOT NULL DEFAULT '',
		share_publish_type TEXT NOT NULL DEFAULT 'preprint',
		domain_redirect_enabled BOOLEAN NOT NULL DEFAULT false,
		reviews_workflow TEXT NOT NULL DEFAULT ''
	);`,

	`CREATE TABLE IF NOT EXISTS containers (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		modified TIMESTAMP NOT NULL,
		is_public BOOLEAN NOT NULL DEFAULT false
	);`,

	`CREATE TABLE IF NOT EXISTS container_tags (
		container_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS container_institutions (
		container_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS preprints (
		id TEXT PRIMARY KEY,
		container_id TEXT,
		provider_id TEXT,
		modified TIMESTAMP NOT NULL,
		published_at TIMESTAMP,
		is_published BOOLEAN NOT NULL DEFAULT false,
		is_deleted BOOLEAN NOT NULL DEFAULT false,
		review_state TEXT NOT NULL DEFAULT '',
		article_doi TEXT NOT NULL DEFAULT '',
		absolute_url TEXT NOT NULL DEFAULT ''
	);`,

	`CREATE TABLE IF NOT EXISTS preprint_identifiers (
		preprint_id TEXT NOT NULL,
		category TEXT NOT NULL,
		value TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		uri TEXT NOT NULL DEFAULT '',
		parent_id TEXT,
		central_synonym_id TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS preprint_subjects (
		preprint_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		subject_id TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL DEFAULT '',
		given_name TEXT NOT NULL DEFAULT '',
		family_name TEXT NOT NULL DEFAULT '',
		middle_names TEXT NOT NULL DEFAULT '',
		suffix TEXT NOT NULL DEFAULT '',
		absolute_url TEXT NOT NULL DEFAULT '',
		orcid TEXT NOT NULL DEFAULT ''
	);`,

	`CREATE TABLE IF NOT EXISTS user_institutions (
		user_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS contributors (
		container_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		bibliographic BOOLEAN NOT NULL DEFAULT true
	);`,

	`CREATE TABLE IF NOT EXISTS sync_log (
		id TEXT PRIMARY KEY,
		preprint_id TEXT NOT NULL,
		path TEXT NOT NULL,
		share_type TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		retries INTEGER NOT NULL DEFAULT 0,
		node_count INTEGER NOT NULL DEFAULT 0,
		date_updated TIMESTAMP,
		error TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);`,
}

var indexQueries = []string{
	`CREATE INDEX IF NOT EXISTS idx_container_tags_container ON container_tags(container_id);`,
	`CREATE INDEX IF NOT EXISTS idx_preprint_subjects_preprint ON preprint_subjects(preprint_id);`,
	`CREATE INDEX IF NOT EXISTS idx_contributors_container ON contributors(container_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sync_log_preprint ON sync_log(preprint_id, created_at);`,
}

// createTables creates all tables and indexes.
func (db *DB) createTables(ctx context.Context) error {
	for _, query := range tableQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	for _, query := range indexQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
