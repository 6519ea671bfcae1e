// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/sharesync/internal/coalesce"
	"github.com/tomtom215/sharesync/internal/database"
	"github.com/tomtom215/sharesync/internal/formatter"
	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/preprint"
	"github.com/tomtom215/sharesync/internal/share"
	"github.com/tomtom215/sharesync/internal/validation"
)

// Warnings for merged events that missed the event topic.
const (
	warnDeferred = "Update events could not be published; SHARE pushes were queued for retry"
	warnLost     = "Update events could not be published or queued; the preprint will sync on its next change"
)

// EventsResponse reports what an ingest request published.
type EventsResponse struct {
	Received  int    `json:"received"`
	Published int    `json:"published"`
	Deferred  int    `json:"deferred,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// PreprintSavedResponse reports a saved preprint and the event it raised.
type PreprintSavedResponse struct {
	PreprintID string         `json:"preprint_id"`
	Event      preprint.Event `json:"event"`
	Published  int            `json:"published"`
	Deferred   int            `json:"deferred,omitempty"`
	Warning    string         `json:"warning,omitempty"`
}

// GraphPreview is the document a push of the preprint would send.
type GraphPreview struct {
	PreprintID  string          `json:"preprint_id"`
	ShareType   string          `json:"share_type"`
	DateUpdated time.Time       `json:"date_updated"`
	NodeCount   int             `json:"node_count"`
	Envelope    *share.Envelope `json:"envelope"`
}

// IngestEvents handles POST /api/v1/preprints/events. All events of one
// request form one unit of work: they are merged per preprint and the
// merged events are published once.
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req EventsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if limit := h.cfg.API.MaxEventsPerRequest; limit > 0 && len(req.Events) > limit {
		rw.ValidationError(fmt.Sprintf("at most %d events per request", limit), map[string]any{"field": "events", "tag": "max"})
		return
	}

	ctx, unit := coalesce.WithUnitOfWork(r.Context())
	for _, e := range req.Events {
		if err := coalesce.Notify(ctx, e); err != nil {
			unit.Rollback()
			rw.InternalError("Failed to queue preprint event", err)
			return
		}
	}

	resp := EventsResponse{Received: len(req.Events)}
	published, err := unit.Commit(ctx, h.publisher)
	if err != nil {
		deferred, ferr := h.deferUnpublished(ctx, err)
		if ferr != nil {
			logging.Ctx(ctx).Error().Err(ferr).Msg("Failed to queue unpublished preprint events")
			rw.Error(http.StatusServiceUnavailable, ErrCodePublishFailed, "Events could not be published")
			return
		}
		resp.Deferred = deferred
		resp.Warning = warnDeferred
	}
	resp.Published = published

	logging.Ctx(ctx).Info().
		Int("received", resp.Received).
		Int("published", resp.Published).
		Int("deferred", resp.Deferred).
		Msg("Ingested preprint events")

	rw.Accepted(resp)
}

// deferUnpublished queues a SHARE push for every merged event a failed
// Commit returned. Events without update_share only carry an identifier
// refresh, which the retry queue cannot run; they are logged and dropped.
func (h *Handler) deferUnpublished(ctx context.Context, commitErr error) (int, error) {
	var pubErr *coalesce.PublishError
	if !errors.As(commitErr, &pubErr) {
		return 0, commitErr
	}
	if h.fallback == nil {
		return 0, fmt.Errorf("no retry queue for unpublished events: %w", commitErr)
	}

	deferred := 0
	for _, e := range pubErr.Events {
		logger := logging.Ctx(ctx).With().Str("preprint_id", e.PreprintID).Logger()
		if !e.UpdateShare {
			logger.Warn().Msg("Dropping unpublished event without update_share")
			continue
		}
		task, err := h.fallback.Schedule(ctx, e.PreprintID, e.ShareType, e.OldSubjects, time.Now())
		if err != nil {
			return deferred, fmt.Errorf("queue unpublished event for %s: %w", e.PreprintID, err)
		}
		logger.Warn().Str("task_id", task.ID).Msg("Event publish failed, SHARE push queued for retry")
		deferred++
	}
	return deferred, nil
}

// SavePreprint handles PUT /api/v1/preprints/{id}. The stored read model
// is replaced and an update event is raised for the changes: subjects no
// longer attached become old_subjects, and a first DOI adds
// preprint_doi_created to the saved fields.
func (h *Handler) SavePreprint(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if !validPreprintID(id) {
		rw.BadRequest("Invalid preprint id")
		return
	}

	var req PreprintRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	snap, err := req.Snapshot(id)
	if err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}

	ctx := logging.ContextWithPreprintID(r.Context(), id)
	ctx, unit := coalesce.WithUnitOfWork(ctx)
	defer unit.Rollback()

	previousSubjects, previousDOI, err := h.previousState(ctx, id)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	if err := h.db.SaveSnapshot(ctx, snap); err != nil {
		rw.DatabaseError(err)
		return
	}

	event := preprint.Event{
		PreprintID:  id,
		UpdateShare: req.UpdateShare == nil || *req.UpdateShare,
		ShareType:   req.ShareType,
		OldSubjects: removedSubjects(previousSubjects, req.SubjectIDs),
		SavedFields: preprint.NewFieldSet(req.SavedFields...),
	}
	if newDOI, ok := snap.Identifier(preprint.CategoryDOI); ok && previousDOI == "" && newDOI != "" {
		event.SavedFields[preprint.FieldDOICreated] = struct{}{}
	}
	if err := coalesce.Notify(ctx, event); err != nil {
		rw.InternalError("Failed to queue preprint event", err)
		return
	}

	// The save is committed; a publish failure must not fail it.
	resp := PreprintSavedResponse{PreprintID: id, Event: event}
	published, err := unit.Commit(ctx, h.publisher)
	if err != nil {
		deferred, ferr := h.deferUnpublished(ctx, err)
		resp.Deferred = deferred
		resp.Warning = warnDeferred
		if ferr != nil {
			logging.Ctx(ctx).Error().Err(ferr).Msg("Preprint update event lost")
			resp.Warning = warnLost
		}
	}
	resp.Published = published

	rw.Success(resp)
}

// previousState returns the attached subject ids and DOI before a save.
func (h *Handler) previousState(ctx context.Context, id string) ([]string, string, error) {
	subjects, err := h.db.PreprintSubjectIDs(ctx, id)
	if err != nil {
		return nil, "", err
	}
	snap, err := h.db.LoadPreprint(ctx, id, nil)
	if errors.Is(err, database.ErrPreprintNotFound) {
		return subjects, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	doi, _ := snap.Identifier(preprint.CategoryDOI)
	return subjects, doi, nil
}

// removedSubjects returns ids in before that are absent from after.
func removedSubjects(before, after []string) []string {
	var removed []string
	for _, id := range before {
		if !slices.Contains(after, id) {
			removed = append(removed, id)
		}
	}
	return removed
}

// PreviewGraph handles GET /api/v1/preprints/{id}/graph. Query parameters
// share_type and old_subjects (comma separated) mirror an event.
func (h *Handler) PreviewGraph(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if !validPreprintID(id) {
		rw.BadRequest("Invalid preprint id")
		return
	}

	oldSubjects := parseCommaSeparated(r.URL.Query().Get("old_subjects"))
	snap, err := h.db.LoadPreprint(r.Context(), id, oldSubjects)
	if err != nil {
		if errors.Is(err, database.ErrPreprintNotFound) {
			rw.NotFound("Preprint not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	shareType := r.URL.Query().Get("share_type")
	if shareType == "" && snap.Provider() != nil {
		shareType = snap.Provider().SharePublishType
	}

	env := share.NewEnvelope(h.formatter.Format(snap, shareType, oldSubjects))
	rw.Success(GraphPreview{
		PreprintID:  id,
		ShareType:   shareType,
		DateUpdated: formatter.DateUpdated(snap),
		NodeCount:   env.Len(),
		Envelope:    env,
	})
}

// SyncLog handles GET /api/v1/preprints/{id}/sync-log?limit=N.
func (h *Handler) SyncLog(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if !validPreprintID(id) {
		rw.BadRequest("Invalid preprint id")
		return
	}

	records, err := h.db.SyncHistory(r.Context(), id, getIntParam(r, "limit", 50))
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if records == nil {
		records = []database.SyncRecord{}
	}
	rw.List(records, len(records))
}

// Retries handles GET /api/v1/retries.
func (h *Handler) Retries(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.retries == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Retry queue is not available")
		return
	}

	tasks, err := h.retries.Pending(r.Context())
	if err != nil {
		rw.InternalError("Failed to list retry tasks", err)
		return
	}
	rw.List(tasks, len(tasks))
}

func validPreprintID(id string) bool {
	candidate := struct {
		ID string `validate:"required,objectid,max=64"`
	}{ID: id}
	return validation.ValidateStruct(&candidate) == nil
}
