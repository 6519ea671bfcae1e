// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/sharesync/internal/config"
)

type recordingSink struct {
	name   string
	err    error
	alerts []*Alert
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, alert *Alert) error {
	s.alerts = append(s.alerts, alert)
	return s.err
}

func testAlert() *Alert {
	return &Alert{
		Kind:       KindPermanentFailure,
		PreprintID: "abc12",
		ShareType:  "preprint",
		StatusCode: 400,
		Body:       `{"errors":[{"detail":"bad graph"}]}`,
		Retries:    0,
		At:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAlert_Text(t *testing.T) {
	a := testAlert()
	if a.Subject() != "SHARE preprint sync error: abc12" {
		t.Errorf("Subject() = %q", a.Subject())
	}
	text := a.Text()
	for _, want := range []string{"abc12", "permanent_failure", "HTTP status: 400", "Retries: 0", "bad graph", "2026-03-01T12:00:00Z"} {
		if !strings.Contains(text, want) {
			t.Errorf("Text() missing %q:\n%s", want, text)
		}
	}
}

func TestMulti_FansOut(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	broken := &recordingSink{name: "broken", err: errors.New("smtp down")}
	last := &recordingSink{name: "last"}

	m := NewMulti(ok, nil, broken, last)
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (nil sinks dropped)", m.Len())
	}

	err := m.Send(context.Background(), testAlert())
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("Send() error = %v, want the broken channel named", err)
	}
	if len(ok.alerts) != 1 || len(broken.alerts) != 1 || len(last.alerts) != 1 {
		t.Error("every sink should receive the alert once")
	}
}

func TestLogSink(t *testing.T) {
	if err := (LogSink{}).Send(context.Background(), testAlert()); err != nil {
		t.Errorf("LogSink.Send() error = %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AlertingConfig
		want int
	}{
		{"log only", config.AlertingConfig{SupportEmail: "support@osf.io"}, 1},
		{"email", config.AlertingConfig{SupportEmail: "support@osf.io", SMTP: config.SMTPConfig{Host: "mail", Port: 25}}, 2},
		{"email without address", config.AlertingConfig{SMTP: config.SMTPConfig{Host: "mail"}}, 1},
		{"webhook", config.AlertingConfig{WebhookURL: "http://hooks.local/x"}, 2},
		{"all", config.AlertingConfig{SupportEmail: "a@b.c", SMTP: config.SMTPConfig{Host: "mail"}, WebhookURL: "http://h"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromConfig(&tt.cfg).Len(); got != tt.want {
				t.Errorf("FromConfig() has %d sinks, want %d", got, tt.want)
			}
		})
	}
}
