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

	"github.com/tomtom215/sharesync/internal/preprint"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PreprintRecord is the row-level shape of a preprint for writes.
// Related entities are referenced by id and written separately.
type PreprintRecord struct {
	ID          string
	ContainerID string
	ProviderID  string
	Modified    time.Time
	PublishedAt time.Time
	IsPublished bool
	IsDeleted   bool
	ReviewState string
	ArticleDOI  string
	AbsoluteURL string
	Identifiers map[string]string
	SubjectIDs  []string
}

// UpsertProvider inserts or replaces a provider.
func (db *DB) UpsertProvider(ctx context.Context, p *preprint.Provider) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return upsertProvider(ctx, db.conn, p)
}

// UpsertContainer inserts or replaces a container with its tags and
// institutions.
func (db *DB) UpsertContainer(ctx context.Context, c *preprint.Container) error {
	return db.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return upsertContainer(ctx, tx, c)
	})
}

// UpsertSubject inserts or replaces a subject and, first, its parent and
// central synonym chains.
func (db *DB) UpsertSubject(ctx context.Context, s *preprint.Subject) error {
	return db.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return upsertSubject(ctx, tx, s, make(map[string]bool))
	})
}

// SetContributors replaces the contributor list of a container, upserting
// each contributor's user row.
func (db *DB) SetContributors(ctx context.Context, containerID string, contributors []preprint.Contributor) error {
	return db.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return setContributors(ctx, tx, containerID, contributors)
	})
}

// UpsertPreprint inserts or replaces a preprint row along with its
// identifiers and subject attachments.
func (db *DB) UpsertPreprint(ctx context.Context, r *PreprintRecord) error {
	return db.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return upsertPreprint(ctx, tx, r)
	})
}

// SaveSnapshot writes every entity reachable from a snapshot in one
// transaction. Current subjects are attached to the preprint; catalog
// subjects are stored but not attached.
func (db *DB) SaveSnapshot(ctx context.Context, s *preprint.Snapshot) error {
	return db.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rec := &PreprintRecord{
			ID:          s.PreprintID,
			Modified:    s.ModifiedAt,
			PublishedAt: s.PublishedAt,
			IsPublished: s.IsPublished,
			IsDeleted:   s.IsDeleted,
			ReviewState: s.ReviewState,
			ArticleDOI:  s.ArticleDOIValue,
			AbsoluteURL: s.URL,
			Identifiers: s.Identifiers,
		}
		if s.Service != nil {
			rec.ProviderID = s.Service.ID
			if err := upsertProvider(ctx, tx, s.Service); err != nil {
				return err
			}
		}
		if s.Node != nil {
			rec.ContainerID = s.Node.ID
			if err := upsertContainer(ctx, tx, s.Node); err != nil {
				return err
			}
			if err := setContributors(ctx, tx, s.Node.ID, s.ContributorList); err != nil {
				return err
			}
		}

		written := make(map[string]bool)
		for _, sub := range s.CurrentSubjects {
			if err := upsertSubject(ctx, tx, sub, written); err != nil {
				return err
			}
			rec.SubjectIDs = append(rec.SubjectIDs, sub.ID)
		}
		for _, sub := range s.Catalog {
			if err := upsertSubject(ctx, tx, sub, written); err != nil {
				return err
			}
		}

		return upsertPreprint(ctx, tx, rec)
	})
}

func (db *DB) inTx(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func upsertProvider(ctx context.Context, e execer, p *preprint.Provider) error {
	shareType := p.SharePublishType
	if shareType == "" {
		shareType = "preprint"
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO providers (id, name, access_token, share_publish_type, domain_redirect_enabled, reviews_workflow)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			access_token = EXCLUDED.access_token,
			share_publish_type = EXCLUDED.share_publish_type,
			domain_redirect_enabled = EXCLUDED.domain_redirect_enabled,
			reviews_workflow = EXCLUDED.reviews_workflow`,
		p.ID, p.Name, p.AccessToken, shareType, p.DomainRedirectEnabled, p.ReviewsWorkflow)
	if err != nil {
		return fmt.Errorf("upsert provider %s: %w", p.ID, err)
	}
	return nil
}

func upsertContainer(ctx context.Context, e execer, c *preprint.Container) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO containers (id, title, description, modified, is_public)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			modified = EXCLUDED.modified,
			is_public = EXCLUDED.is_public`,
		c.ID, c.Title, c.Description, c.Modified.UTC(), c.Public)
	if err != nil {
		return fmt.Errorf("upsert container %s: %w", c.ID, err)
	}
	if err := replaceList(ctx, e, "container_tags", "container_id", c.ID, c.Tags); err != nil {
		return err
	}
	return replaceList(ctx, e, "container_institutions", "container_id", c.ID, c.Institutions)
}

func upsertSubject(ctx context.Context, e execer, s *preprint.Subject, written map[string]bool) error {
	if s == nil || written[s.ID] {
		return nil
	}
	written[s.ID] = true

	var parentID, synonymID sql.NullString
	if s.Parent != nil {
		if err := upsertSubject(ctx, e, s.Parent, written); err != nil {
			return err
		}
		parentID = sql.NullString{String: s.Parent.ID, Valid: true}
	}
	if s.CentralSynonym != nil {
		if err := upsertSubject(ctx, e, s.CentralSynonym, written); err != nil {
			return err
		}
		synonymID = sql.NullString{String: s.CentralSynonym.ID, Valid: true}
	}

	_, err := e.ExecContext(ctx, `
		INSERT INTO subjects (id, name, uri, parent_id, central_synonym_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			uri = EXCLUDED.uri,
			parent_id = EXCLUDED.parent_id,
			central_synonym_id = EXCLUDED.central_synonym_id`,
		s.ID, s.Name, s.URI, parentID, synonymID)
	if err != nil {
		return fmt.Errorf("upsert subject %s: %w", s.ID, err)
	}
	return nil
}

func setContributors(ctx context.Context, e execer, containerID string, contributors []preprint.Contributor) error {
	if _, err := e.ExecContext(ctx, `DELETE FROM contributors WHERE container_id = ?`, containerID); err != nil {
		return fmt.Errorf("clear contributors: %w", err)
	}
	for i := range contributors {
		c := &contributors[i]
		_, err := e.ExecContext(ctx, `
			INSERT INTO users (id, full_name, given_name, family_name, middle_names, suffix, absolute_url, orcid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				full_name = EXCLUDED.full_name,
				given_name = EXCLUDED.given_name,
				family_name = EXCLUDED.family_name,
				middle_names = EXCLUDED.middle_names,
				suffix = EXCLUDED.suffix,
				absolute_url = EXCLUDED.absolute_url,
				orcid = EXCLUDED.orcid`,
			c.UserID, c.FullName, c.GivenName, c.FamilyName, c.MiddleNames, c.Suffix, c.AbsoluteURL, c.ORCID)
		if err != nil {
			return fmt.Errorf("upsert user %s: %w", c.UserID, err)
		}
		if err := replaceList(ctx, e, "user_institutions", "user_id", c.UserID, c.Institutions); err != nil {
			return err
		}
		if _, err := e.ExecContext(ctx,
			`INSERT INTO contributors (container_id, user_id, position, bibliographic) VALUES (?, ?, ?, ?)`,
			containerID, c.UserID, i, c.Bibliographic); err != nil {
			return fmt.Errorf("insert contributor %s: %w", c.UserID, err)
		}
	}
	return nil
}

func upsertPreprint(ctx context.Context, e execer, r *PreprintRecord) error {
	var publishedAt sql.NullTime
	if !r.PublishedAt.IsZero() {
		publishedAt = sql.NullTime{Time: r.PublishedAt.UTC(), Valid: true}
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO preprints (id, container_id, provider_id, modified, published_at, is_published,
		                       is_deleted, review_state, article_doi, absolute_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			container_id = EXCLUDED.container_id,
			provider_id = EXCLUDED.provider_id,
			modified = EXCLUDED.modified,
			published_at = EXCLUDED.published_at,
			is_published = EXCLUDED.is_published,
			is_deleted = EXCLUDED.is_deleted,
			review_state = EXCLUDED.review_state,
			article_doi = EXCLUDED.article_doi,
			absolute_url = EXCLUDED.absolute_url`,
		r.ID, nullString(r.ContainerID), nullString(r.ProviderID), r.Modified.UTC(), publishedAt,
		r.IsPublished, r.IsDeleted, r.ReviewState, r.ArticleDOI, r.AbsoluteURL)
	if err != nil {
		return fmt.Errorf("upsert preprint %s: %w", r.ID, err)
	}

	if _, err := e.ExecContext(ctx, `DELETE FROM preprint_identifiers WHERE preprint_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear identifiers: %w", err)
	}
	for category, value := range r.Identifiers {
		if _, err := e.ExecContext(ctx,
			`INSERT INTO preprint_identifiers (preprint_id, category, value) VALUES (?, ?, ?)`,
			r.ID, category, value); err != nil {
			return fmt.Errorf("insert identifier %s: %w", category, err)
		}
	}

	if _, err := e.ExecContext(ctx, `DELETE FROM preprint_subjects WHERE preprint_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear preprint subjects: %w", err)
	}
	for i, sid := range r.SubjectIDs {
		if _, err := e.ExecContext(ctx,
			`INSERT INTO preprint_subjects (preprint_id, position, subject_id) VALUES (?, ?, ?)`,
			r.ID, i, sid); err != nil {
			return fmt.Errorf("attach subject %s: %w", sid, err)
		}
	}
	return nil
}

// replaceList rewrites an ordered (owner, position, name) join table.
// table and ownerColumn are package constants, never caller input.
func replaceList(ctx context.Context, e execer, table, ownerColumn, ownerID string, names []string) error {
	//nolint:gosec // identifiers are fixed table names
	if _, err := e.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, ownerColumn), ownerID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for i, name := range names {
		//nolint:gosec // identifiers are fixed table names
		query := fmt.Sprintf(`INSERT INTO %s (%s, position, name) VALUES (?, ?, ?)`, table, ownerColumn)
		if _, err := e.ExecContext(ctx, query, ownerID, i, name); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
