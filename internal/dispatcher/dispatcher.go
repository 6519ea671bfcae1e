// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package dispatcher pushes preprint metadata to SHARE.
//
// HandleEvent is the entry point for committed preprint update events: it
// loads the preprint, refreshes identifier metadata when the change calls
// for it, and dispatches the graph when the event asks for a SHARE update.
// The synchronous attempt classifies its response; transient failures are
// handed to the retry queue with the preprint id, former subjects and
// resolved share type only, and Retry (called by the retry loop) rebuilds
// the document from fresh state on every attempt.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/sharesync/internal/alerting"
	"github.com/tomtom215/sharesync/internal/cache"
	"github.com/tomtom215/sharesync/internal/database"
	"github.com/tomtom215/sharesync/internal/formatter"
	"github.com/tomtom215/sharesync/internal/identifier"
	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/preprint"
	"github.com/tomtom215/sharesync/internal/retryqueue"
	"github.com/tomtom215/sharesync/internal/share"
)

// ErrMissingCredential is returned when the provider has no SHARE access
// token. It is a configuration error: never retried, never alerted.
var ErrMissingCredential = errors.New("provider has no SHARE access token")

// Store is the preprint read model and sync log.
type Store interface {
	LoadPreprint(ctx context.Context, id string, oldSubjectIDs []string) (*preprint.Snapshot, error)
	RecordSyncOutcome(ctx context.Context, rec *database.SyncRecord) error
	LastSentDateUpdated(ctx context.Context, preprintID string) (time.Time, bool, error)
}

// Sender transmits envelopes to SHARE.
type Sender interface {
	Enabled() bool
	Send(ctx context.Context, token string, env *share.Envelope) (*share.Response, error)
}

// RetryScheduler accepts transient failures for asynchronous retry.
type RetryScheduler interface {
	Schedule(ctx context.Context, preprintID, shareType string, oldSubjects []string, next time.Time) (*retryqueue.Task, error)
}

// OutcomeNotifier receives every recorded attempt, e.g. the websocket hub.
type OutcomeNotifier interface {
	BroadcastSyncOutcome(rec *database.SyncRecord)
}

// Deps are the collaborators of a Dispatcher. Store, Formatter, Sender and
// Retries are required.
type Deps struct {
	Store       Store
	Formatter   *formatter.Formatter
	Sender      Sender
	Retries     RetryScheduler
	Identifiers *identifier.Trigger
	Alerts      alerting.Sink
	Notifier    OutcomeNotifier
	Policy      retryqueue.Policy
}

// Dispatcher runs sync attempts. It is safe for concurrent use.
type Dispatcher struct {
	store       Store
	formatter   *formatter.Formatter
	sender      Sender
	retries     RetryScheduler
	identifiers *identifier.Trigger
	alerts      alerting.Sink
	notifier    OutcomeNotifier
	policy      retryqueue.Policy
	lastSent    *cache.DateCache
	now         func() time.Time
}

// New validates deps and returns a Dispatcher. A nil Alerts sink falls back
// to the log; a zero Policy falls back to retryqueue.DefaultPolicy.
func New(deps Deps) (*Dispatcher, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("dispatcher: store is required")
	case deps.Formatter == nil:
		return nil, errors.New("dispatcher: formatter is required")
	case deps.Sender == nil:
		return nil, errors.New("dispatcher: sender is required")
	case deps.Retries == nil:
		return nil, errors.New("dispatcher: retry scheduler is required")
	}

	alerts := deps.Alerts
	if alerts == nil {
		alerts = alerting.LogSink{}
	}
	policy := deps.Policy
	if policy.Cap == 0 {
		policy = retryqueue.DefaultPolicy()
	}

	return &Dispatcher{
		store:       deps.Store,
		formatter:   deps.Formatter,
		sender:      deps.Sender,
		retries:     deps.Retries,
		identifiers: deps.Identifiers,
		alerts:      alerts,
		notifier:    deps.Notifier,
		policy:      policy,
		lastSent:    cache.NewDateCache(0, 0),
		now:         time.Now,
	}, nil
}

// HandleEvent processes one committed (merged) preprint update event.
func (d *Dispatcher) HandleEvent(ctx context.Context, e preprint.Event) error {
	ctx = logging.ContextWithPreprintID(ctx, e.PreprintID)

	snap, err := d.store.LoadPreprint(ctx, e.PreprintID, e.OldSubjects)
	if err != nil {
		return fmt.Errorf("load preprint %s: %w", e.PreprintID, err)
	}

	d.identifiers.MaybeRefresh(ctx, snap, e.OldSubjects, e.SavedFields)

	if !e.UpdateShare {
		return nil
	}
	return d.dispatch(ctx, snap, e.OldSubjects, e.ShareType)
}

// Dispatch runs the synchronous SHARE push for a preprint. It returns nil
// once the attempt has been classified and handled, including permanent
// failures (alerted) and transient failures (queued for retry).
func (d *Dispatcher) Dispatch(ctx context.Context, id string, oldSubjects []string, shareType string) error {
	ctx = logging.ContextWithPreprintID(ctx, id)

	snap, err := d.store.LoadPreprint(ctx, id, oldSubjects)
	if err != nil {
		return fmt.Errorf("load preprint %s: %w", id, err)
	}
	return d.dispatch(ctx, snap, oldSubjects, shareType)
}

func (d *Dispatcher) dispatch(ctx context.Context, snap *preprint.Snapshot, oldSubjects []string, shareType string) error {
	logger := logging.Ctx(ctx)

	if !d.sender.Enabled() {
		logger.Debug().Msg("SHARE URL not configured, skipping metadata sync")
		return nil
	}

	token, shareType, err := resolve(snap, shareType)
	if err != nil {
		logger.Error().Err(err).Msg("Unable to send preprint to SHARE")
		return err
	}

	res := d.attempt(ctx, snap, token, shareType, oldSubjects, database.PathSync, 0)

	switch res.outcome {
	case share.OutcomeSuccess:
		return nil

	case share.OutcomePermanent:
		d.alert(ctx, alerting.KindPermanentFailure, snap.ID(), shareType, 0, res.err)
		return nil

	default:
		task, err := d.retries.Schedule(ctx, snap.ID(), shareType, oldSubjects, d.now())
		if err != nil {
			return fmt.Errorf("schedule SHARE retry for %s: %w", snap.ID(), err)
		}
		logger.Warn().Err(res.err).
			Str("task_id", task.ID).
			Str("share_type", shareType).
			Msg("SHARE push failed transiently, queued for retry")
		return nil
	}
}

// resolve returns the provider token and the effective share type.
func resolve(snap *preprint.Snapshot, shareType string) (token, resolved string, err error) {
	prov := snap.Provider()
	if prov == nil || prov.AccessToken == "" {
		name := "<none>"
		if prov != nil {
			name = prov.ID
		}
		return "", "", fmt.Errorf("%w: provider %s, preprint %s", ErrMissingCredential, name, snap.ID())
	}
	if shareType == "" {
		shareType = prov.SharePublishType
	}
	return prov.AccessToken, shareType, nil
}
