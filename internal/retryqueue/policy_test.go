// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package retryqueue

import (
	"testing"
	"time"

	"github.com/tomtom215/sharesync/internal/config"
	"github.com/tomtom215/sharesync/internal/share"
)

func fixedRand(u float64) func() float64 {
	return func() float64 { return u }
}

func TestPolicy_Backoff(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 61 * time.Second},
		{1, 65 * time.Second},
		{2, 85 * time.Second},
		{3, 185 * time.Second},
		{4, 600 * time.Second}, // 60 + 625 capped
		{40, 600 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.n); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestPolicy_DelayBounds(t *testing.T) {
	for _, u := range []float64{0, 0.25, 0.5, 0.999999} {
		p := DefaultPolicy()
		p.Rand = fixedRand(u)
		for n := 0; n <= 4; n++ {
			d := p.Delay(n)
			lo := p.Backoff(n)
			if d < lo || d >= 2*lo {
				t.Errorf("Delay(%d) with u=%v = %v, want in [%v, %v)", n, u, d, lo, 2*lo)
			}
			if d > 2*p.Cap {
				t.Errorf("Delay(%d) = %v exceeds twice the cap", n, d)
			}
		}
	}
}

func TestPolicy_DelayJitter(t *testing.T) {
	p := DefaultPolicy()
	p.Rand = fixedRand(0.5)
	if got, want := p.Delay(0), time.Duration(1.5*float64(61*time.Second)); got != want {
		t.Errorf("Delay(0) = %v, want %v", got, want)
	}

	p.Rand = fixedRand(1.5) // out of range falls back to no jitter
	if got := p.Delay(0); got != 61*time.Second {
		t.Errorf("Delay(0) with bad rand = %v, want 61s", got)
	}
}

func TestPolicy_DelayDefaultRand(t *testing.T) {
	p := DefaultPolicy()
	for i := 0; i < 100; i++ {
		d := p.Delay(4)
		if d < 600*time.Second || d >= 1200*time.Second {
			t.Fatalf("Delay(4) = %v, want in [10m, 20m)", d)
		}
	}
}

func TestPolicy_Next(t *testing.T) {
	p := DefaultPolicy()
	p.Rand = fixedRand(0)

	tests := []struct {
		name      string
		retries   int
		outcome   share.Outcome
		wantState State
		wantNext  int
		wantAlert bool
		wantDelay time.Duration
	}{
		{"success", 2, share.OutcomeSuccess, StateSucceeded, 2, false, 0},
		{"permanent", 1, share.OutcomePermanent, StatePermanentFailure, 1, true, 0},
		{"first transient", 0, share.OutcomeTransient, StateScheduled, 1, false, 61 * time.Second},
		{"third transient", 3, share.OutcomeTransient, StateScheduled, 4, false, 185 * time.Second},
		{"exhausting transient", 4, share.OutcomeTransient, StateExhausted, 4, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Next(tt.retries, tt.outcome)
			if d.State != tt.wantState {
				t.Errorf("State = %s, want %s", d.State, tt.wantState)
			}
			if d.Retries != tt.wantNext {
				t.Errorf("Retries = %d, want %d", d.Retries, tt.wantNext)
			}
			if d.Alert != tt.wantAlert {
				t.Errorf("Alert = %t, want %t", d.Alert, tt.wantAlert)
			}
			if d.Delay != tt.wantDelay {
				t.Errorf("Delay = %v, want %v", d.Delay, tt.wantDelay)
			}
			if d.State.Terminal() == (tt.wantState == StateScheduled) {
				t.Errorf("Terminal() = %t for %s", d.State.Terminal(), d.State)
			}
		})
	}
}

func TestPolicy_ExhaustionAlertsOnce(t *testing.T) {
	p := DefaultPolicy()
	p.Rand = fixedRand(0)

	alerts, attempts := 0, 0
	retries := 0
	for {
		attempts++
		d := p.Next(retries, share.OutcomeTransient)
		if d.Alert {
			alerts++
		}
		if d.State.Terminal() {
			if d.State != StateExhausted {
				t.Fatalf("chain ended in %s, want exhausted", d.State)
			}
			break
		}
		retries = d.Retries
		if attempts > 100 {
			t.Fatal("retry chain never terminated")
		}
	}

	if attempts != p.MaxRetries+1 {
		t.Errorf("async attempts = %d, want %d", attempts, p.MaxRetries+1)
	}
	if alerts != 1 {
		t.Errorf("alerts = %d, want exactly 1", alerts)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(&config.RetryConfig{
		MaxRetries:   2,
		BackoffBase:  3,
		BackoffFloor: 10 * time.Second,
		BackoffCap:   time.Minute,
	})
	if p.MaxRetries != 2 || p.Base != 3 || p.Floor != 10*time.Second || p.Cap != time.Minute {
		t.Errorf("PolicyFromConfig() = %+v", p)
	}
	if got := p.Backoff(2); got != 19*time.Second {
		t.Errorf("Backoff(2) = %v, want 19s", got)
	}
}
