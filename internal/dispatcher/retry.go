// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package dispatcher

import (
	"context"
	"errors"

	"github.com/tomtom215/sharesync/internal/alerting"
	"github.com/tomtom215/sharesync/internal/database"
	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/retryqueue"
	"github.com/tomtom215/sharesync/internal/share"
)

var _ retryqueue.Executor = (*Dispatcher)(nil)

// Retry runs the asynchronous attempt numbered task.Retries. The preprint
// is reloaded and the graph rebuilt from current state.
func (d *Dispatcher) Retry(ctx context.Context, task *retryqueue.Task) retryqueue.Decision {
	logger := logging.Ctx(ctx)

	if !d.sender.Enabled() {
		logger.Info().Str("task_id", task.ID).Msg("SHARE URL no longer configured, dropping retry")
		return retryqueue.Decision{State: retryqueue.StateSucceeded, Retries: task.Retries}
	}

	snap, err := d.store.LoadPreprint(ctx, task.PreprintID, task.OldSubjects)
	if err != nil {
		if errors.Is(err, database.ErrPreprintNotFound) {
			logger.Warn().Str("task_id", task.ID).Msg("Preprint vanished before retry, dropping task")
			return retryqueue.Decision{State: retryqueue.StatePermanentFailure, Retries: task.Retries, LastError: err.Error()}
		}
		// Store errors are infrastructure trouble; treat like a failed push.
		logger.Error().Err(err).Str("task_id", task.ID).Msg("Failed to load preprint for retry")
		return d.decide(task, share.OutcomeTransient, err)
	}

	token, _, err := resolve(snap, task.ShareType)
	if err != nil {
		logger.Error().Err(err).Str("task_id", task.ID).Msg("Unable to retry SHARE push")
		return retryqueue.Decision{State: retryqueue.StatePermanentFailure, Retries: task.Retries, LastError: err.Error()}
	}

	res := d.attempt(ctx, snap, token, task.ShareType, task.OldSubjects, database.PathRetry, task.Retries)
	return d.decide(task, res.outcome, res.err)
}

func (d *Dispatcher) decide(task *retryqueue.Task, outcome share.Outcome, err error) retryqueue.Decision {
	decision := d.policy.Next(task.Retries, outcome)
	if err != nil {
		decision.LastError = err.Error()
		decision.Err = err
	}
	return decision
}

// Finish alerts operators once a retry chain ends in a permanent failure
// or exhausts the policy. The loop calls it after the task is removed.
func (d *Dispatcher) Finish(ctx context.Context, task *retryqueue.Task, decision retryqueue.Decision) {
	if !decision.Alert {
		return
	}
	kind := alerting.KindPermanentFailure
	if decision.State == retryqueue.StateExhausted {
		kind = alerting.KindRetriesExhausted
	}
	d.alert(ctx, kind, task.PreprintID, task.ShareType, task.Retries, decision.Err)
}
