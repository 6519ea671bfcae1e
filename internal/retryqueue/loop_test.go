// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package retryqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/sharesync/internal/share"
)

// scriptedExecutor replays outcomes through a policy, one per attempt.
type scriptedExecutor struct {
	mu       sync.Mutex
	policy   Policy
	outcomes []share.Outcome
	seen     []int
	alerts   int
}

func (e *scriptedExecutor) Retry(_ context.Context, task *Task) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := share.OutcomeTransient
	if len(e.outcomes) > 0 {
		outcome = e.outcomes[0]
		e.outcomes = e.outcomes[1:]
	}
	e.seen = append(e.seen, task.Retries)
	d := e.policy.Next(task.Retries, outcome)
	d.Delay = 0
	return d
}

func (e *scriptedExecutor) Finish(_ context.Context, _ *Task, d Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d.Alert {
		e.alerts++
	}
}

func (e *scriptedExecutor) alertCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alerts
}

// flakyCompleteStore fails the first failures Complete calls.
type flakyCompleteStore struct {
	*BadgerQueue
	mu       sync.Mutex
	failures int
}

func (s *flakyCompleteStore) Complete(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("badger: write conflict")
	}
	s.mu.Unlock()
	return s.BadgerQueue.Complete(ctx, id)
}

func (e *scriptedExecutor) attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen)
}

func TestLoop_RunOnceAppliesDecisions(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()
	exec := &scriptedExecutor{
		policy:   DefaultPolicy(),
		outcomes: []share.Outcome{share.OutcomeTransient, share.OutcomeSuccess},
	}
	loop := NewLoop(q, exec, createFastTestConfig())

	task, _ := q.Schedule(ctx, "p1", "", nil, time.Now())

	if n := loop.RunOnce(ctx); n != 1 {
		t.Fatalf("first RunOnce() = %d, want 1", n)
	}
	got, err := q.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("task should still be queued: %v", err)
	}
	if got.Retries != 1 {
		t.Errorf("Retries = %d after transient failure, want 1", got.Retries)
	}

	if n := loop.RunOnce(ctx); n != 1 {
		t.Fatalf("second RunOnce() = %d, want 1", n)
	}
	if _, err := q.Get(ctx, task.ID); err == nil {
		t.Error("succeeded task should be removed")
	}
}

func TestLoop_ExhaustsAfterMaxRetries(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()
	exec := &scriptedExecutor{policy: DefaultPolicy()}
	loop := NewLoop(q, exec, createFastTestConfig())

	_, _ = q.Schedule(ctx, "p1", "", nil, time.Now())
	for i := 0; i < 10; i++ {
		loop.RunOnce(ctx)
	}

	if exec.attempts() != 5 {
		t.Errorf("attempts = %d, want 5", exec.attempts())
	}
	want := []int{0, 1, 2, 3, 4}
	for i, r := range want {
		if exec.seen[i] != r {
			t.Errorf("attempt %d ran as retry %d, want %d", i, exec.seen[i], r)
		}
	}
	if exec.alerts != 1 {
		t.Errorf("alerts = %d, want 1", exec.alerts)
	}
	if q.Depth() != 0 {
		t.Errorf("Depth() = %d after exhaustion, want 0", q.Depth())
	}
}

func TestLoop_SkipsLeasedTasks(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()
	exec := &scriptedExecutor{policy: DefaultPolicy()}
	loop := NewLoop(q, exec, createFastTestConfig())

	task, _ := q.Schedule(ctx, "p1", "", nil, time.Now())
	if ok, _ := q.TryClaim(ctx, task.ID, "other-worker"); !ok {
		t.Fatal("claim failed")
	}

	if n := loop.RunOnce(ctx); n != 0 {
		t.Errorf("RunOnce() = %d, want 0 for a task leased elsewhere", n)
	}
}

func TestLoop_StartStop(t *testing.T) {
	q := setupQueue(t)
	exec := &scriptedExecutor{
		policy:   DefaultPolicy(),
		outcomes: []share.Outcome{share.OutcomeSuccess},
	}
	loop := NewLoop(q, exec, createFastTestConfig())

	_, _ = q.Schedule(context.Background(), "p1", "", nil, time.Now())

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if !loop.IsRunning() {
		t.Fatal("loop should be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for exec.attempts() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if exec.attempts() != 1 {
		t.Errorf("attempts = %d, want 1", exec.attempts())
	}

	loop.Stop()
	loop.Stop()
	if loop.IsRunning() {
		t.Error("loop should be stopped")
	}
}

func TestLoop_AlertsOnceWhenCompleteFails(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	policy := DefaultPolicy()
	policy.MaxRetries = 0
	exec := &scriptedExecutor{policy: policy}
	store := &flakyCompleteStore{BadgerQueue: q, failures: 1}
	loop := NewLoop(store, exec, createFastTestConfig())

	task, _ := q.Schedule(ctx, "p1", "", nil, time.Now())

	loop.RunOnce(ctx)
	if got := exec.alertCount(); got != 0 {
		t.Fatalf("alerts = %d before the task left the queue, want 0", got)
	}
	got, err := q.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("task should still be queued: %v", err)
	}
	if got.LeaseHolder != "" {
		t.Errorf("lease held by %q after failed completion, want released", got.LeaseHolder)
	}

	// The released task runs again on the next tick and completes.
	if n := loop.RunOnce(ctx); n != 1 {
		t.Fatalf("second RunOnce() = %d, want 1", n)
	}
	if got := exec.alertCount(); got != 1 {
		t.Errorf("alerts = %d, want exactly 1", got)
	}
	if q.Depth() != 0 {
		t.Errorf("Depth() = %d, want 0", q.Depth())
	}
}
