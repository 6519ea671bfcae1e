// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package database

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/tomtom215/sharesync/internal/logging"
)

// ErrPreprintNotFound is returned when no preprint row matches the id.
var ErrPreprintNotFound = errors.New("preprint not found")

// closeQuietly closes a resource and ignores the error.
// Use for cleanup paths where a close failure changes nothing.
func closeQuietly(c io.Closer) {
	_ = c.Close() //nolint:errcheck // cleanup path
}

// closeWithLog closes a resource and logs failures at debug level.
func closeWithLog(c io.Closer, resourceName string) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Str("resource", resourceName).Msg("Failed to close resource")
	}
}

// rollbackQuietly rolls back a transaction that may already be finished.
func rollbackQuietly(tx interface{ Rollback() error }) {
	_ = tx.Rollback() //nolint:errcheck // no-op after commit
}

// schemaContext returns a context for schema creation.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}
