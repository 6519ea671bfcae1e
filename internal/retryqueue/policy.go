// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package retryqueue

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/tomtom215/sharesync/internal/config"
	"github.com/tomtom215/sharesync/internal/share"
)

// State is the position of a retry chain after an attempt.
type State string

const (
	StateScheduled        State = "scheduled"
	StateSucceeded        State = "succeeded"
	StatePermanentFailure State = "permanent_failure"
	StateExhausted        State = "exhausted"
)

// Terminal reports whether no further attempt follows.
func (s State) Terminal() bool {
	return s != StateScheduled
}

// Policy computes jittered backoff and decides the next state of a chain.
type Policy struct {
	// MaxRetries is the number of asynchronous retries after the first
	// asynchronous attempt.
	MaxRetries int

	// Base is raised to the retry number and added to Floor seconds.
	Base float64

	Floor time.Duration
	Cap   time.Duration

	// Rand returns a value in [0,1). Nil uses math/rand/v2.
	Rand func() float64
}

// DefaultPolicy returns 4 retries, base 5, a 60s floor and a 10 minute cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 4,
		Base:       5,
		Floor:      60 * time.Second,
		Cap:        10 * time.Minute,
	}
}

// PolicyFromConfig builds a policy from the retry section.
func PolicyFromConfig(cfg *config.RetryConfig) Policy {
	return Policy{
		MaxRetries: cfg.MaxRetries,
		Base:       cfg.BackoffBase,
		Floor:      cfg.BackoffFloor,
		Cap:        cfg.BackoffCap,
	}
}

// Backoff returns min(Floor + Base^n seconds, Cap) without jitter.
func (p Policy) Backoff(n int) time.Duration {
	growth := math.Pow(p.Base, float64(n))
	if math.IsInf(growth, 0) || math.IsNaN(growth) || growth > p.Cap.Seconds() {
		return p.Cap
	}
	d := p.Floor + time.Duration(growth*float64(time.Second))
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Delay returns (U+1) * Backoff(n) with U uniform in [0,1). The result lies
// in [Backoff(n), 2*Backoff(n)) and never exceeds 2*Cap.
func (p Policy) Delay(n int) time.Duration {
	u := p.random()
	return time.Duration((u + 1) * float64(p.Backoff(n)))
}

func (p Policy) random() float64 {
	var u float64
	if p.Rand != nil {
		u = p.Rand()
	} else {
		u = rand.Float64()
	}
	if u < 0 || u >= 1 {
		u = 0
	}
	return u
}

// Decision is what happens after one asynchronous attempt.
type Decision struct {
	State State

	// Retries is the retry number the next attempt will run as. It equals
	// the attempt's own number when the state is terminal.
	Retries int

	// Delay is how long to wait before the next attempt.
	Delay time.Duration

	// Alert is set on permanent failures and on the exhausting attempt.
	Alert bool

	LastError string

	// Err is the attempt's error, kept for alert diagnostics.
	Err error
}

// Next decides the state after the attempt numbered retries finished with
// outcome.
func (p Policy) Next(retries int, outcome share.Outcome) Decision {
	switch outcome {
	case share.OutcomeSuccess:
		return Decision{State: StateSucceeded, Retries: retries}
	case share.OutcomePermanent:
		return Decision{State: StatePermanentFailure, Retries: retries, Alert: true}
	}

	if retries >= p.MaxRetries {
		return Decision{State: StateExhausted, Retries: retries, Alert: true}
	}
	return Decision{
		State:   StateScheduled,
		Retries: retries + 1,
		Delay:   p.Delay(retries),
	}
}
