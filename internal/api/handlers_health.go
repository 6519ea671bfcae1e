// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status           string  `json:"status"`
	Version          string  `json:"version,omitempty"`
	DatabaseHealthy  bool    `json:"database_healthy"`
	ShareEnabled     bool    `json:"share_enabled"`
	MessagingBackend string  `json:"messaging_backend"`
	RetryQueueDepth  int     `json:"retry_queue_depth"`
	WebSocketClients int     `json:"websocket_clients"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// Health reports service status. It responds 503 when the database does
// not answer a ping within two seconds.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:           "healthy",
		Version:          h.version,
		DatabaseHealthy:  h.db.Ping(ctx) == nil,
		ShareEnabled:     h.cfg.Share.URL != "",
		MessagingBackend: h.cfg.Messaging.Backend,
		UptimeSeconds:    time.Since(h.startTime).Seconds(),
	}
	if h.retries != nil {
		status.RetryQueueDepth = h.retries.Depth()
	}
	if h.hub != nil {
		status.WebSocketClients = h.hub.GetClientCount()
	}

	rw := NewResponseWriter(w, r)
	if !status.DatabaseHealthy {
		status.Status = "degraded"
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Database unavailable", status)
		return
	}
	rw.Success(status)
}
