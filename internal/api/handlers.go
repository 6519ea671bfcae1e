// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/sharesync/internal/coalesce"
	"github.com/tomtom215/sharesync/internal/config"
	"github.com/tomtom215/sharesync/internal/database"
	"github.com/tomtom215/sharesync/internal/formatter"
	"github.com/tomtom215/sharesync/internal/retryqueue"
	ws "github.com/tomtom215/sharesync/internal/websocket"
)

// RetryLister is the read side of the retry queue.
type RetryLister interface {
	Pending(ctx context.Context) ([]*retryqueue.Task, error)
	Depth() int
}

// RetryScheduler queues a SHARE push whose event could not be published.
type RetryScheduler interface {
	Schedule(ctx context.Context, preprintID, shareType string, oldSubjects []string, next time.Time) (*retryqueue.Task, error)
}

// Deps are the collaborators of a Handler. DB, Formatter and Publisher are
// required.
type Deps struct {
	DB        *database.DB
	Formatter *formatter.Formatter
	Publisher coalesce.Publisher
	Retries   RetryLister
	Fallback  RetryScheduler
	Hub       *ws.Hub
	Config    *config.Config
	Version   string
}

// Handler holds the HTTP handlers.
type Handler struct {
	db        *database.DB
	formatter *formatter.Formatter
	publisher coalesce.Publisher
	retries   RetryLister
	fallback  RetryScheduler
	hub       *ws.Hub
	cfg       *config.Config
	version   string
	startTime time.Time
}

// NewHandler validates deps.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("api: database is required")
	case deps.Formatter == nil:
		return nil, errors.New("api: formatter is required")
	case deps.Publisher == nil:
		return nil, errors.New("api: event publisher is required")
	case deps.Config == nil:
		return nil, errors.New("api: config is required")
	}
	return &Handler{
		db:        deps.DB,
		formatter: deps.Formatter,
		publisher: deps.Publisher,
		retries:   deps.Retries,
		fallback:  deps.Fallback,
		hub:       deps.Hub,
		cfg:       deps.Config,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// getUpgrader checks websocket origins against the CORS origins.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkWebSocketOrigin,
	}
}

func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.API.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
