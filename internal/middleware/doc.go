// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

/*
Package middleware provides HTTP middleware shared by the API router.

  - RequestID: accepts or generates X-Request-ID and seeds the logging
    context with request and correlation ids. The correlation id follows
    published events into the dispatcher's log lines.
  - PrometheusMetrics: request duration by method, chi route pattern and
    status. Route patterns keep label cardinality bounded.

Both are func(http.Handler) http.Handler and are mounted with chi's r.Use.
*/
package middleware
