// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package identifier decides when a preprint's DOI metadata must be
// refreshed and asks the identifier service to do it.
package identifier

import (
	"context"

	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/metrics"
	"github.com/tomtom215/sharesync/internal/preprint"
)

// DOI metadata statuses.
const (
	StatusPublic      = "public"
	StatusUnavailable = "unavailable"
)

// Requester asks the identifier service to refresh metadata of one
// identifier category of a preprint.
type Requester interface {
	RequestUpdate(ctx context.Context, preprintID, category, status string) error
}

// ShouldUpdate reports whether a save must refresh the preprint's DOI
// metadata. All of the following must hold:
//   - the preprint has a container
//   - the save is not the one that first stored the DOI
//   - no subjects changed in the save
//   - the preprint is eligible for identifiers (not a QA test)
func ShouldUpdate(p preprint.View, oldSubjects []string, savedFields preprint.FieldSet) bool {
	if p.Container() == nil {
		return false
	}
	if savedFields.Has(preprint.FieldDOICreated) {
		return false
	}
	if len(oldSubjects) > 0 {
		return false
	}
	return p.ShouldRequestIdentifiers()
}

// Status is the DOI metadata status to request for p.
func Status(p preprint.View) string {
	if p.VerifiedPublishable() {
		return StatusPublic
	}
	return StatusUnavailable
}

// Trigger requests identifier refreshes. Failures never propagate.
type Trigger struct {
	requester Requester
}

// NewTrigger returns a trigger over r. A nil r disables refreshes.
func NewTrigger(r Requester) *Trigger {
	return &Trigger{requester: r}
}

// Refresh requests a DOI metadata update for p and reports whether the
// request was made and accepted. Errors are logged and swallowed.
func (t *Trigger) Refresh(ctx context.Context, p preprint.View) bool {
	if t == nil || t.requester == nil {
		return false
	}

	status := Status(p)
	err := t.requester.RequestUpdate(ctx, p.ID(), preprint.CategoryDOI, status)
	metrics.RecordIdentifierRefresh(status, err)

	logger := logging.Ctx(ctx)
	if err != nil {
		logger.Warn().Err(err).
			Str("preprint_id", p.ID()).
			Str("status", status).
			Msg("Identifier metadata refresh failed")
		return false
	}
	logger.Debug().
		Str("preprint_id", p.ID()).
		Str("status", status).
		Msg("Requested identifier metadata refresh")
	return true
}

// MaybeRefresh runs ShouldUpdate and, when it holds, Refresh.
func (t *Trigger) MaybeRefresh(ctx context.Context, p preprint.View, oldSubjects []string, savedFields preprint.FieldSet) bool {
	if !ShouldUpdate(p, oldSubjects, savedFields) {
		return false
	}
	return t.Refresh(ctx, p)
}
