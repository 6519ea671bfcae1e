// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

/*
Package main is the entry point for the ShareSync server.

ShareSync keeps the SHARE discovery index in step with preprint metadata.
Saves arrive over the ingest API, are coalesced per request into one event
per preprint, and are published after commit. The event consumer formats
each preprint into a SHARE graph and pushes it; transient failures go to a
durable retry queue.

# Application Architecture

	RootSupervisor ("sharesync")
	├── DataSupervisor ("data-layer")
	│   ├── Retry loop (Badger-backed)
	│   └── Embedded NATS watchdog (NATS_EMBEDDED=true)
	├── MessagingSupervisor ("messaging-layer")
	│   └── Event consumer (watermill router)
	└── APISupervisor ("api-layer")
	    ├── HTTP Server (chi)
	    └── WebSocket Hub (sync outcome feed)

Initialization order:

 1. Configuration: Koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog, JSON or console
 3. Database: DuckDB read model and sync log
 4. Retry queue: BadgerDB
 5. Dispatcher: formatter, SHARE client, identifier trigger, alert sinks
 6. Messaging: embedded NATS, JetStream stream, publisher
 7. HTTP router and supervisor tree

# Configuration

	SHARE_URL=https://share.osf.io/    # empty disables pushes
	SHARE_DOMAIN=https://osf.io/
	MESSAGING_BACKEND=nats              # nats or memory
	NATS_EMBEDDED=true
	API_JWT_SECRET=<32+ chars>          # required in production
	LOG_LEVEL=info
	LOG_FORMAT=json

# Signal Handling

SIGINT and SIGTERM cancel the root context. In-flight HTTP requests get 10s
to finish, the consumer router drains its handlers, the retry loop finishes
its batch, then the publisher, retry queue and database are closed.
*/
package main
