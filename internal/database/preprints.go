// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/sharesync/internal/preprint"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LoadPreprint reads the full state of one preprint in a single
// transaction. Subjects named in oldSubjectIDs that are no longer attached
// are resolved into the snapshot catalog so former subjects can still be
// described; unknown ids are ignored.
func (db *DB) LoadPreprint(ctx context.Context, id string, oldSubjectIDs []string) (*preprint.Snapshot, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	snap, containerID, providerID, err := loadPreprintRow(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if providerID != "" {
		if snap.Service, err = loadProvider(ctx, tx, providerID); err != nil {
			return nil, err
		}
	}
	if containerID != "" {
		if snap.Node, err = loadContainer(ctx, tx, containerID); err != nil {
			return nil, err
		}
		if snap.ContributorList, err = loadContributors(ctx, tx, containerID); err != nil {
			return nil, err
		}
	}
	if snap.Identifiers, err = loadIdentifiers(ctx, tx, id); err != nil {
		return nil, err
	}

	subjects := newSubjectLoader(tx)
	currentIDs, err := loadStrings(ctx, tx,
		`SELECT subject_id FROM preprint_subjects WHERE preprint_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load preprint subjects: %w", err)
	}
	for _, sid := range currentIDs {
		sub, err := subjects.load(ctx, sid)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			snap.CurrentSubjects = append(snap.CurrentSubjects, sub)
		}
	}

	snap.Catalog = make(map[string]*preprint.Subject, len(oldSubjectIDs))
	for _, sid := range oldSubjectIDs {
		if snap.HasSubject(sid) {
			continue
		}
		sub, err := subjects.load(ctx, sid)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			snap.Catalog[sid] = sub
		}
	}

	return snap, nil
}

// PreprintSubjectIDs returns the ids of the subjects currently attached to
// a preprint, in display order.
func (db *DB) PreprintSubjectIDs(ctx context.Context, id string) ([]string, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	ids, err := loadStrings(ctx, db.conn,
		`SELECT subject_id FROM preprint_subjects WHERE preprint_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load preprint subjects: %w", err)
	}
	return ids, nil
}

func loadPreprintRow(ctx context.Context, q queryer, id string) (snap *preprint.Snapshot, containerID, providerID string, err error) {
	var (
		container, provider sql.NullString
		publishedAt         sql.NullTime
	)
	snap = &preprint.Snapshot{PreprintID: id}

	row := q.QueryRowContext(ctx, `
		SELECT container_id, provider_id, modified, published_at, is_published,
		       is_deleted, review_state, article_doi, absolute_url
		FROM preprints WHERE id = ?`, id)
	err = row.Scan(&container, &provider, &snap.ModifiedAt, &publishedAt,
		&snap.IsPublished, &snap.IsDeleted, &snap.ReviewState, &snap.ArticleDOIValue, &snap.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", "", fmt.Errorf("%w: %s", ErrPreprintNotFound, id)
	}
	if err != nil {
		return nil, "", "", fmt.Errorf("load preprint %s: %w", id, err)
	}

	snap.ModifiedAt = snap.ModifiedAt.UTC()
	if publishedAt.Valid {
		snap.PublishedAt = publishedAt.Time.UTC()
	}
	return snap, container.String, provider.String, nil
}

func loadProvider(ctx context.Context, q queryer, id string) (*preprint.Provider, error) {
	p := &preprint.Provider{ID: id}
	err := q.QueryRowContext(ctx, `
		SELECT name, access_token, share_publish_type, domain_redirect_enabled, reviews_workflow
		FROM providers WHERE id = ?`, id).
		Scan(&p.Name, &p.AccessToken, &p.SharePublishType, &p.DomainRedirectEnabled, &p.ReviewsWorkflow)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load provider %s: %w", id, err)
	}
	return p, nil
}

func loadContainer(ctx context.Context, q queryer, id string) (*preprint.Container, error) {
	c := &preprint.Container{ID: id}
	err := q.QueryRowContext(ctx, `
		SELECT title, description, modified, is_public FROM containers WHERE id = ?`, id).
		Scan(&c.Title, &c.Description, &c.Modified, &c.Public)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load container %s: %w", id, err)
	}
	c.Modified = c.Modified.UTC()

	if c.Tags, err = loadStrings(ctx, q,
		`SELECT name FROM container_tags WHERE container_id = ? ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("load container tags: %w", err)
	}
	if c.Institutions, err = loadStrings(ctx, q,
		`SELECT name FROM container_institutions WHERE container_id = ? ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("load container institutions: %w", err)
	}
	return c, nil
}

func loadIdentifiers(ctx context.Context, q queryer, preprintID string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT category, value FROM preprint_identifiers WHERE preprint_id = ?`, preprintID)
	if err != nil {
		return nil, fmt.Errorf("load identifiers: %w", err)
	}
	defer closeQuietly(rows)

	out := make(map[string]string)
	for rows.Next() {
		var category, value string
		if err := rows.Scan(&category, &value); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		out[category] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identifiers: %w", err)
	}
	return out, nil
}

func loadContributors(ctx context.Context, q queryer, containerID string) ([]preprint.Contributor, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT u.id, u.full_name, u.given_name, u.family_name, u.middle_names,
		       u.suffix, u.absolute_url, u.orcid, c.bibliographic
		FROM contributors c
		JOIN users u ON u.id = c.user_id
		WHERE c.container_id = ?
		ORDER BY c.position`, containerID)
	if err != nil {
		return nil, fmt.Errorf("load contributors: %w", err)
	}

	var out []preprint.Contributor
	for rows.Next() {
		var c preprint.Contributor
		if err := rows.Scan(&c.UserID, &c.FullName, &c.GivenName, &c.FamilyName, &c.MiddleNames,
			&c.Suffix, &c.AbsoluteURL, &c.ORCID, &c.Bibliographic); err != nil {
			closeQuietly(rows)
			return nil, fmt.Errorf("scan contributor: %w", err)
		}
		out = append(out, c)
	}
	err = rows.Err()
	closeQuietly(rows)
	if err != nil {
		return nil, fmt.Errorf("iterate contributors: %w", err)
	}

	for i := range out {
		if out[i].Institutions, err = loadStrings(ctx, q,
			`SELECT name FROM user_institutions WHERE user_id = ? ORDER BY position`, out[i].UserID); err != nil {
			return nil, fmt.Errorf("load user institutions: %w", err)
		}
	}
	return out, nil
}

// subjectLoader resolves subjects with their parent and synonym chains,
// memoising each id so shared ancestors load once and cycles terminate.
type subjectLoader struct {
	q    queryer
	seen map[string]*preprint.Subject
}

func newSubjectLoader(q queryer) *subjectLoader {
	return &subjectLoader{q: q, seen: make(map[string]*preprint.Subject)}
}

// load returns nil, nil for an unknown id.
func (l *subjectLoader) load(ctx context.Context, id string) (*preprint.Subject, error) {
	if sub, ok := l.seen[id]; ok {
		return sub, nil
	}

	var (
		sub             = &preprint.Subject{ID: id}
		parent, synonym sql.NullString
	)
	err := l.q.QueryRowContext(ctx,
		`SELECT name, uri, parent_id, central_synonym_id FROM subjects WHERE id = ?`, id).
		Scan(&sub.Name, &sub.URI, &parent, &synonym)
	if errors.Is(err, sql.ErrNoRows) {
		l.seen[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load subject %s: %w", id, err)
	}
	l.seen[id] = sub

	if parent.Valid && parent.String != "" {
		if sub.Parent, err = l.load(ctx, parent.String); err != nil {
			return nil, err
		}
	}
	if synonym.Valid && synonym.String != "" {
		if sub.CentralSynonym, err = l.load(ctx, synonym.String); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func loadStrings(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(rows)

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
