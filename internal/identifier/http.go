// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package identifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sharesync/internal/config"
)

// updateRequest is the body POSTed to the identifier service.
type updateRequest struct {
	PreprintID string `json:"preprint_id"`
	Category   string `json:"category"`
	Status     string `json:"status"`
}

// HTTPRequester calls an identifier service over HTTP.
type HTTPRequester struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPRequester returns nil when the service is disabled or has no URL,
// which NewTrigger treats as "no refreshes".
func NewHTTPRequester(cfg *config.IdentifierConfig) *HTTPRequester {
	if !cfg.Enabled || cfg.URL == "" {
		return nil
	}
	return &HTTPRequester{
		url:    cfg.URL,
		token:  cfg.Token,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// RequestUpdate implements Requester.
func (r *HTTPRequester) RequestUpdate(ctx context.Context, preprintID, category, status string) error {
	body, err := json.Marshal(updateRequest{PreprintID: preprintID, Category: category, Status: status})
	if err != nil {
		return fmt.Errorf("marshal identifier update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create identifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send identifier update: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("identifier service returned status %d", resp.StatusCode)
	}
	return nil
}
