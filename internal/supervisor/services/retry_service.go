// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package services

import (
	"context"
	"fmt"
)

// StartStopper is the lifecycle of *retryqueue.Loop.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// RetryLoopService runs the async SHARE retry loop under supervision.
//
// Start spawns the polling goroutine; Stop waits for the in-flight batch,
// so a task is never left half-applied when the tree shuts down.
type RetryLoopService struct {
	loop StartStopper
	name string
}

// NewRetryLoopService wraps loop.
func NewRetryLoopService(loop StartStopper) *RetryLoopService {
	return &RetryLoopService{
		loop: loop,
		name: "retry-loop",
	}
}

// Serve implements suture.Service.
func (s *RetryLoopService) Serve(ctx context.Context) error {
	if err := s.loop.Start(ctx); err != nil {
		return fmt.Errorf("retry loop start failed: %w", err)
	}

	<-ctx.Done()
	s.loop.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (s *RetryLoopService) String() string {
	return s.name
}
