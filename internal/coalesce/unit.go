// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package coalesce

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/metrics"
	"github.com/tomtom215/sharesync/internal/preprint"
)

var (
	// ErrClosed is returned when notifying a committed or rolled back unit.
	ErrClosed = errors.New("coalesce: unit of work is closed")

	// ErrNoUnitOfWork is returned by Notify when ctx carries no unit.
	ErrNoUnitOfWork = errors.New("coalesce: no unit of work in context")
)

// Publisher receives merged events after commit.
type Publisher interface {
	Publish(ctx context.Context, events ...preprint.Event) error
}

// PublishError carries the merged events a failed Commit could not
// publish, so the caller can hand them to a durable fallback.
type PublishError struct {
	Events []preprint.Event
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %d committed events: %v", len(e.Events), e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

type state int

const (
	stateOpen state = iota
	stateCommitted
	stateRolledBack
)

// UnitOfWork is the pending-effects queue of one transaction or request.
// It is safe for concurrent use.
type UnitOfWork struct {
	mu      sync.Mutex
	state   state
	order   []string
	pending map[string]preprint.Event
}

// New returns an open unit of work.
func New() *UnitOfWork {
	return &UnitOfWork{pending: make(map[string]preprint.Event)}
}

// Notify merges e into the pending event for its preprint, or queues it.
func (u *UnitOfWork) Notify(e preprint.Event) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != stateOpen {
		return ErrClosed
	}
	metrics.EventsNotified.Inc()

	if existing, ok := u.pending[e.PreprintID]; ok {
		u.pending[e.PreprintID] = Merge(existing, e)
		metrics.EventsCoalesced.Inc()
		return nil
	}
	u.pending[e.PreprintID] = normalize(e.Clone())
	u.order = append(u.order, e.PreprintID)
	return nil
}

// Pending returns copies of the merged events in first-notified order.
func (u *UnitOfWork) Pending() []preprint.Event {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.snapshot()
}

func (u *UnitOfWork) snapshot() []preprint.Event {
	out := make([]preprint.Event, 0, len(u.order))
	for _, id := range u.order {
		out = append(out, u.pending[id].Clone())
	}
	return out
}

// Len returns the number of distinct preprints pending.
func (u *UnitOfWork) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.order)
}

// Commit closes the unit and hands every merged event to pub exactly once.
// It returns the number of events published. A closed unit returns
// ErrClosed and publishes nothing. When pub fails the error is a
// *PublishError holding the merged events.
func (u *UnitOfWork) Commit(ctx context.Context, pub Publisher) (int, error) {
	u.mu.Lock()
	if u.state != stateOpen {
		u.mu.Unlock()
		return 0, ErrClosed
	}
	u.state = stateCommitted
	events := u.snapshot()
	u.order = nil
	u.pending = nil
	u.mu.Unlock()

	if len(events) == 0 {
		return 0, nil
	}

	err := pub.Publish(ctx, events...)
	metrics.RecordPublish(len(events), err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Int("events", len(events)).Msg("Failed to publish committed preprint events")
		return 0, &PublishError{Events: events, Err: err}
	}
	logging.Ctx(ctx).Debug().Int("events", len(events)).Msg("Published committed preprint events")
	return len(events), nil
}

// Rollback discards pending events. Rolling back a committed unit is a no-op.
func (u *UnitOfWork) Rollback() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != stateOpen {
		return
	}
	u.state = stateRolledBack
	u.order = nil
	u.pending = nil
}

type contextKey struct{}

// WithUnitOfWork attaches a new unit of work to ctx.
func WithUnitOfWork(ctx context.Context) (context.Context, *UnitOfWork) {
	u := New()
	return context.WithValue(ctx, contextKey{}, u), u
}

// FromContext returns the unit of work attached to ctx.
func FromContext(ctx context.Context) (*UnitOfWork, bool) {
	u, ok := ctx.Value(contextKey{}).(*UnitOfWork)
	return u, ok
}

// Notify records e in the unit of work carried by ctx.
func Notify(ctx context.Context, e preprint.Event) error {
	u, ok := FromContext(ctx)
	if !ok {
		return ErrNoUnitOfWork
	}
	return u.Notify(e)
}
