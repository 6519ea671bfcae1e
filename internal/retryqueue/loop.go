// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package retryqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/metrics"
)

// Executor runs one asynchronous attempt for a task and decides what
// happens next. The dispatcher implements it.
type Executor interface {
	Retry(ctx context.Context, task *Task) Decision

	// Finish runs once per terminal task, after the task has left the
	// queue. A task whose removal fails is attempted again, so side
	// effects such as alerts belong here rather than in Retry.
	Finish(ctx context.Context, task *Task, d Decision)
}

// Store is the task storage the loop works through.
type Store interface {
	Due(ctx context.Context, now time.Time, limit int) ([]*Task, error)
	TryClaim(ctx context.Context, id, holder string) (bool, error)
	Reschedule(ctx context.Context, id string, retries int, next time.Time, lastError string) error
	Complete(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
	Depth() int
}

var _ Store = (*BadgerQueue)(nil)

// Loop periodically claims due tasks and hands them to an Executor.
type Loop struct {
	queue       Store
	exec        Executor
	config      Config
	leaseHolder string

	// Control
	ctx    context.Context
	cancel context.CancelFunc

	// State - all protected by mu
	mu       sync.Mutex
	running  bool
	stopping bool
	stopDone chan struct{}
}

// NewLoop creates a retry worker over q.
func NewLoop(q Store, exec Executor, cfg Config) *Loop {
	return &Loop{
		queue:       q,
		exec:        exec,
		config:      cfg,
		leaseHolder: fmt.Sprintf("retry-loop-%s", uuid.New().String()[:8]),
	}
}

// Start begins polling. It returns immediately; Stop or cancelling ctx ends
// the loop.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()

	// Wait for any in-progress Stop() to complete
	for l.stopping {
		stopDone := l.stopDone
		l.mu.Unlock()
		<-stopDone
		l.mu.Lock()
	}

	if l.running {
		l.mu.Unlock()
		return nil
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running = true
	l.stopDone = make(chan struct{})
	loopCtx := l.ctx
	done := l.stopDone
	l.mu.Unlock()

	go l.run(loopCtx, done)

	logging.Info().
		Dur("interval", l.config.PollInterval).
		Int("batch_size", l.config.BatchSize).
		Str("lease_holder", l.leaseHolder).
		Msg("Retry loop started")
	return nil
}

// Stop cancels the loop and waits for the in-flight batch to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running || l.stopping {
		l.mu.Unlock()
		return
	}
	l.cancel()
	l.running = false
	l.stopping = true
	stopDone := l.stopDone
	l.mu.Unlock()

	<-stopDone

	l.mu.Lock()
	l.stopping = false
	l.mu.Unlock()

	logging.Info().Msg("Retry loop stopped")
}

// IsRunning returns whether the loop is active.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Tasks left by a previous process are due already.
	l.RunOnce(ctx)

	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce processes one batch of due tasks and returns how many attempts
// were made.
func (l *Loop) RunOnce(ctx context.Context) int {
	defer l.queue.Depth()

	tasks, err := l.queue.Due(ctx, time.Now(), l.config.BatchSize)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Retry loop: failed to list due tasks")
		}
		return 0
	}

	attempts := 0
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			return attempts
		default:
		}
		if l.process(ctx, task) {
			attempts++
		}
	}
	return attempts
}

func (l *Loop) process(ctx context.Context, task *Task) bool {
	claimed, err := l.queue.TryClaim(ctx, task.ID, l.leaseHolder)
	if err != nil {
		if !errors.Is(err, ErrTaskNotFound) {
			logging.Error().Err(err).Str("task_id", task.ID).Msg("Retry loop: error claiming task")
		}
		return false
	}
	if !claimed {
		return false
	}

	taskCtx := logging.ContextWithPreprintID(ctx, task.PreprintID)
	taskCtx = logging.ContextWithCorrelationID(taskCtx, task.ID)
	decision := l.exec.Retry(taskCtx, task)
	l.apply(taskCtx, task, decision)
	return true
}

func (l *Loop) apply(ctx context.Context, task *Task, d Decision) {
	logger := logging.Ctx(ctx)

	if d.State == StateScheduled {
		next := time.Now().Add(d.Delay)
		if err := l.queue.Reschedule(ctx, task.ID, d.Retries, next, d.LastError); err != nil {
			logger.Error().Err(err).Str("task_id", task.ID).Msg("Retry loop: failed to reschedule task")
			l.release(ctx, task)
			return
		}
		logger.Info().
			Int("retries", d.Retries).
			Dur("delay", d.Delay).
			Str("last_error", d.LastError).
			Msg("SHARE push rescheduled")
		return
	}

	if err := l.queue.Complete(ctx, task.ID); err != nil && !errors.Is(err, ErrTaskNotFound) {
		// The task stays queued and runs again; Finish waits for a
		// removal that sticks.
		logger.Error().Err(err).Str("task_id", task.ID).Msg("Retry loop: failed to complete task")
		l.release(ctx, task)
		return
	}
	if d.State == StateExhausted {
		metrics.RetriesExhausted.Inc()
	}
	l.exec.Finish(ctx, task, d)
	logger.Info().
		Str("state", string(d.State)).
		Int("retries", d.Retries).
		Msg("Retry chain finished")
}

// release frees the lease so the next tick can claim the task again.
func (l *Loop) release(ctx context.Context, task *Task) {
	if err := l.queue.Release(ctx, task.ID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("task_id", task.ID).Msg("Retry loop: failed to release task, waiting for lease expiry")
	}
}
