// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package share

import (
	"errors"
	"fmt"
	"io"
)

// Outcome is the classified result of one push.
type Outcome string

const (
	// OutcomeSuccess is any 2xx response.
	OutcomeSuccess Outcome = "success"

	// OutcomePermanent is a 4xx rejection. It is alerted and never retried.
	OutcomePermanent Outcome = "permanent"

	// OutcomeTransient covers 5xx, timeouts, connection errors and an open
	// circuit. It enters the retry policy.
	OutcomeTransient Outcome = "transient"
)

// Terminal reports whether the outcome ends a retry chain.
func (o Outcome) Terminal() bool {
	return o != OutcomeTransient
}

// maxErrorBodySize bounds how much of a response body is kept for diagnostics.
const maxErrorBodySize = 64 * 1024

// StatusError is returned by Send for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("share returned HTTP %d: %s", e.StatusCode, excerpt(e.Body, 512))
}

// Classify maps the result of Send onto an outcome. A nil error is success.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode >= 200 && statusErr.StatusCode < 300:
			return OutcomeSuccess
		case statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
			return OutcomePermanent
		}
	}
	return OutcomeTransient
}

// StatusCode extracts the HTTP status of err, or 0 when no response was read.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// ResponseBody extracts the bounded response body of err, if any.
func ResponseBody(err error) []byte {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Body
	}
	return nil
}

// readBody reads at most maxErrorBodySize bytes and marks truncation.
func readBody(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

func excerpt(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
