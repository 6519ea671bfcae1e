// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package dispatcher

import (
	"context"
	"time"

	"github.com/tomtom215/sharesync/internal/alerting"
	"github.com/tomtom215/sharesync/internal/database"
	"github.com/tomtom215/sharesync/internal/formatter"
	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/metrics"
	"github.com/tomtom215/sharesync/internal/preprint"
	"github.com/tomtom215/sharesync/internal/share"
)

// attemptResult is the classified result of one push.
type attemptResult struct {
	outcome share.Outcome
	err     error
}

// attempt formats, sends and records one push. The graph and response are
// local to the call; nothing from an attempt is reused by the next.
func (d *Dispatcher) attempt(ctx context.Context, snap *preprint.Snapshot, token, shareType string, oldSubjects []string, path string, retries int) attemptResult {
	closure := d.formatter.Format(snap, shareType, oldSubjects)
	env := share.NewEnvelope(closure)
	dateUpdated := formatter.DateUpdated(snap)
	metrics.GraphNodes.Observe(float64(env.Len()))

	d.checkMonotonic(ctx, snap.ID(), dateUpdated)

	start := d.now()
	resp, err := d.sender.Send(ctx, token, env)
	outcome := share.Classify(err)
	metrics.RecordSyncAttempt(path, string(outcome))

	rec := &database.SyncRecord{
		PreprintID: snap.ID(),
		Path:       path,
		ShareType:  shareType,
		Outcome:    string(outcome),
		StatusCode: share.StatusCode(err),
		Retries:    retries,
		NodeCount:  env.Len(),
		Duration:   d.now().Sub(start),
	}
	if resp != nil {
		rec.StatusCode = resp.StatusCode
	}
	if outcome == share.OutcomeSuccess {
		rec.DateUpdated = dateUpdated
		d.lastSent.Advance(snap.ID(), dateUpdated)
	}
	if err != nil {
		rec.Error = err.Error()
	}
	d.record(ctx, rec)

	logging.Ctx(ctx).Info().
		Str("path", path).
		Str("share_type", shareType).
		Str("outcome", string(outcome)).
		Int("status_code", rec.StatusCode).
		Int("retries", retries).
		Int("nodes", rec.NodeCount).
		Msg("SHARE push attempted")

	return attemptResult{outcome: outcome, err: err}
}

// checkMonotonic warns when the document would move date_updated backwards
// relative to the newest document SHARE already accepted. The push still
// goes ahead; SHARE keeps the newest version.
func (d *Dispatcher) checkMonotonic(ctx context.Context, id string, dateUpdated time.Time) {
	last, ok := d.lastSent.Get(id)
	if !ok {
		var err error
		last, ok, err = d.store.LastSentDateUpdated(ctx, id)
		if err != nil {
			logging.Ctx(ctx).Debug().Err(err).Msg("Could not read last sent date_updated")
			return
		}
		if ok {
			d.lastSent.Advance(id, last)
		}
	}
	if ok && dateUpdated.Before(last) {
		metrics.TimestampRegressions.Inc()
		logging.Ctx(ctx).Warn().
			Time("date_updated", dateUpdated).
			Time("last_sent", last).
			Msg("SHARE document date_updated regresses")
	}
}

func (d *Dispatcher) record(ctx context.Context, rec *database.SyncRecord) {
	if err := d.store.RecordSyncOutcome(ctx, rec); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to record sync outcome")
	}
	if d.notifier != nil {
		d.notifier.BroadcastSyncOutcome(rec)
	}
}

// alert notifies operators. Delivery errors do not affect the sync outcome.
func (d *Dispatcher) alert(ctx context.Context, kind alerting.Kind, id, shareType string, retries int, err error) {
	a := &alerting.Alert{
		Kind:       kind,
		PreprintID: id,
		ShareType:  shareType,
		StatusCode: share.StatusCode(err),
		Body:       string(share.ResponseBody(err)),
		Retries:    retries,
		At:         d.now().UTC(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	if err := d.alerts.Send(ctx, a); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("kind", string(kind)).Msg("SHARE sync alert delivery failed")
	}
}
