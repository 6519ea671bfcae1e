// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package retryqueue holds the bounded retry policy for SHARE pushes and the
// durable BadgerDB queue that carries retry tasks across restarts.
//
// # Lifecycle
//
// The synchronous push made after a commit is attempt 0. When it fails
// transiently the dispatcher schedules a Task with Retries=0 that is due
// immediately. Each asynchronous attempt re-reads the preprint, pushes, and
// asks the Policy what happens next:
//
//	success              → StateSucceeded, task removed
//	4xx                  → StatePermanentFailure, alert, task removed
//	5xx, retries < max   → StateScheduled, Retries+1, due after Delay(retries)
//	5xx, retries == max  → StateExhausted, one alert, task removed
//
// Tasks carry only the preprint id, share type and former subjects. The
// document is rebuilt from current state on every attempt.
//
// # Background Processing
//
//	q, _ := retryqueue.Open(&cfg)
//	loop := retryqueue.NewLoop(q, dispatcher, cfg)
//	_ = loop.Start(ctx)
//	defer loop.Stop()
//
// Tasks are claimed with durable leases. A task whose worker crashed becomes
// claimable again once its lease expires; a task the loop failed to update
// is released for the next tick. Alerts are raised by Executor.Finish only
// after a terminal task has been removed, so a repeated attempt never
// alerts twice.
package retryqueue
