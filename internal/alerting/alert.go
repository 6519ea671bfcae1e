// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package alerting delivers operator alerts for SHARE pushes that need a
// human: permanent rejections and exhausted retry chains.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/metrics"
)

// Kind says why an alert was raised.
type Kind string

const (
	KindPermanentFailure Kind = "permanent_failure"
	KindRetriesExhausted Kind = "retries_exhausted"
)

// Alert carries the diagnostics of one failed push.
type Alert struct {
	Kind       Kind      `json:"kind"`
	PreprintID string    `json:"preprint_id"`
	ShareType  string    `json:"share_type,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Body       string    `json:"body,omitempty"`
	Retries    int       `json:"retries"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Subject is the one-line summary used as email subject.
func (a *Alert) Subject() string {
	return "SHARE preprint sync error: " + a.PreprintID
}

// Text renders the plain text body.
func (a *Alert) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Preprint %s could not be sent to SHARE.\r\n\r\n", a.PreprintID)
	fmt.Fprintf(&b, "Reason: %s\r\n", a.Kind)
	if a.StatusCode != 0 {
		fmt.Fprintf(&b, "HTTP status: %d\r\n", a.StatusCode)
	}
	fmt.Fprintf(&b, "Retries: %d\r\n", a.Retries)
	if a.ShareType != "" {
		fmt.Fprintf(&b, "Share type: %s\r\n", a.ShareType)
	}
	if a.Error != "" {
		fmt.Fprintf(&b, "Error: %s\r\n", a.Error)
	}
	fmt.Fprintf(&b, "Time: %s\r\n", a.At.UTC().Format(time.RFC3339))
	if a.Body != "" {
		b.WriteString("\r\nResponse body:\r\n")
		b.WriteString(a.Body)
		b.WriteString("\r\n")
	}
	return b.String()
}

// Sink delivers alerts to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, alert *Alert) error
}

// Multi fans an alert out to every sink. One failing channel does not stop
// the others; their errors are joined.
type Multi struct {
	sinks []Sink
}

// NewMulti returns a fan-out over the non-nil sinks.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Name implements Sink.
func (m *Multi) Name() string {
	return "multi"
}

// Len returns the number of channels.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Send implements Sink.
func (m *Multi) Send(ctx context.Context, alert *Alert) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Send(ctx, alert)
		metrics.RecordAlert(string(alert.Kind), s.Name(), err)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("channel", s.Name()).
				Str("preprint_id", alert.PreprintID).
				Msg("Failed to deliver SHARE sync alert")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes alerts to the structured log. It is always configured so
// that an alert is never silently dropped.
type LogSink struct{}

// Name implements Sink.
func (LogSink) Name() string {
	return "log"
}

// Send implements Sink.
func (LogSink) Send(ctx context.Context, alert *Alert) error {
	logging.Ctx(ctx).Error().
		Str("kind", string(alert.Kind)).
		Str("preprint_id", alert.PreprintID).
		Int("status_code", alert.StatusCode).
		Int("retries", alert.Retries).
		Str("error", alert.Error).
		Msg("SHARE preprint sync needs operator attention")
	return nil
}
