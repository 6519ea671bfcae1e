// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package share is the outbound client for the SHARE normalized data API.
//
// Every push goes through a token bucket limiter and a circuit breaker.
// 4xx responses do not trip the breaker; they are rejections of one
// document, not signs that SHARE is unhealthy.
package share

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/sharesync/internal/config"
	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/metrics"
)

const (
	// NormalizedDataPath is appended to the configured base URL.
	NormalizedDataPath = "api/v2/normalizeddata/"

	// ContentType is the JSON:API media type SHARE expects.
	ContentType = "application/vnd.api+json"

	breakerName = "share-api"
)

// ErrDisabled is returned by Send when no SHARE URL is configured.
var ErrDisabled = errors.New("share: no SHARE URL configured")

// Response is a successful push.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Client pushes normalized data envelopes to SHARE. It is safe for
// concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[*Response]
}

// NewClient builds a client from cfg. An empty cfg.URL yields a disabled
// client whose Send returns ErrDisabled.
func NewClient(cfg *config.ShareConfig) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    newLimiter(cfg.RateLimit, cfg.RateBurst),
		cb:         newBreaker(&cfg.Breaker),
	}
	if cfg.URL != "" {
		base := cfg.URL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		c.endpoint = base + NormalizedDataPath
	}
	return c
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func newBreaker(cfg *config.BreakerConfig) *gobreaker.CircuitBreaker[*Response] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= cfg.FailureRatio
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return err == nil || Classify(err) == OutcomePermanent
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
}

// Enabled reports whether a SHARE URL is configured.
func (c *Client) Enabled() bool {
	return c.endpoint != ""
}

// Endpoint returns the normalized data URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send POSTs env with the provider's bearer token. Non-2xx responses are
// returned as *StatusError; use Classify to decide what happens next.
func (c *Client) Send(ctx context.Context, token string, env *Envelope) (*Response, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("share rate limiter: %w", err)
	}

	return c.cb.Execute(func() (*Response, error) {
		return c.post(ctx, token, body)
	})
}

func (c *Client) post(ctx context.Context, token string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordShareRequest(0, duration)
		return nil, fmt.Errorf("post normalized data: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody := readBody(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)
	metrics.RecordShareRequest(resp.StatusCode, duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	logging.Ctx(ctx).Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("SHARE accepted normalized data")

	return &Response{StatusCode: resp.StatusCode, Body: respBody, Duration: duration}, nil
}

// BreakerState returns the circuit breaker state name.
func (c *Client) BreakerState() string {
	return stateToString(c.cb.State())
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
