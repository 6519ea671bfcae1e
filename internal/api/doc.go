// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

/*
Package api exposes the ingest and operations HTTP API.

Routes (all JSON, wrapped in APIResponse):

	GET  /api/v1/health                     liveness plus dependency status
	POST /api/v1/preprints/events           ingest preprint update events
	PUT  /api/v1/preprints/{id}             save a preprint and raise its update event
	GET  /api/v1/preprints/{id}/graph       preview the SHARE document
	GET  /api/v1/preprints/{id}/sync-log    recent push outcomes
	GET  /api/v1/retries                    pending retry tasks
	GET  /api/v1/ws                         live sync_outcome feed
	GET  /metrics                           Prometheus exposition

Every write request runs inside one coalesce.UnitOfWork. Events notified
while handling the request are merged per preprint and published once,
after the request's writes have succeeded; a failed request rolls the
unit back and nothing is published.

When api.jwt_secret is set, the preprint and retry routes require an
HS256 bearer token.
*/
package api
