// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package share

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/sharesync/internal/graph"
)

var gobreakerOpen = gobreaker.ErrOpenState

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeSuccess},
		{"404", &StatusError{StatusCode: 404}, OutcomePermanent},
		{"422 wrapped", fmt.Errorf("send: %w", &StatusError{StatusCode: 422}), OutcomePermanent},
		{"429", &StatusError{StatusCode: 429}, OutcomePermanent},
		{"500", &StatusError{StatusCode: 500}, OutcomeTransient},
		{"503", &StatusError{StatusCode: 503}, OutcomeTransient},
		{"deadline", context.DeadlineExceeded, OutcomeTransient},
		{"open breaker", gobreaker.ErrOpenState, OutcomeTransient},
		{"half-open saturation", gobreaker.ErrTooManyRequests, OutcomeTransient},
		{"plain error", errors.New("connection reset by peer"), OutcomeTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestOutcome_Terminal(t *testing.T) {
	if !OutcomeSuccess.Terminal() || !OutcomePermanent.Terminal() {
		t.Error("success and permanent outcomes end the chain")
	}
	if OutcomeTransient.Terminal() {
		t.Error("transient outcome must not be terminal")
	}
}

func TestReadBody_Truncates(t *testing.T) {
	big := bytes.Repeat([]byte("x"), maxErrorBodySize+100)
	got := readBody(bytes.NewReader(big))
	if !strings.HasSuffix(string(got), "(truncated)") {
		t.Error("oversized body should be marked truncated")
	}
	if len(got) > maxErrorBodySize+32 {
		t.Errorf("readBody kept %d bytes", len(got))
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{StatusCode: 400, Body: bytes.Repeat([]byte("e"), 2000)}
	msg := err.Error()
	if !strings.HasPrefix(msg, "share returned HTTP 400") {
		t.Errorf("Error() = %q", msg)
	}
	if len(msg) > 600 {
		t.Errorf("Error() should excerpt the body, got %d bytes", len(msg))
	}
}

func TestNewEnvelope_EmptyClosure(t *testing.T) {
	env := NewEnvelope(graph.New().Closure())
	if env.Len() != 0 {
		t.Errorf("Len() = %d, want 0", env.Len())
	}
	if env.Data.Attributes.Data.Graph == nil {
		t.Error("empty envelope should encode @graph as []")
	}
}
