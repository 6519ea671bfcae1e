// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

/*
Package supervisor runs the long-lived parts of ShareSync under a suture v4
supervisor tree.

# Tree Layout

	sharesync (root)
	├── data-layer
	│   ├── retry-loop        retryqueue.Loop (Badger-backed async retries)
	│   └── embedded-broker   watchdog for the embedded NATS server
	├── messaging-layer
	│   └── event-consumer    watermill router dispatching preprint events
	└── api-layer
	    ├── http-server       chi router
	    └── websocket-hub     sync outcome feed

Each layer is its own supervisor, so repeated failures in one layer back
off without stopping the others. Supervisor events are logged through
sutureslog onto the process slog logger.

# Restart Policy

Services return an error to be restarted and ctx.Err() on shutdown. The
thresholds in TreeConfig default to suture's own values.

# Usage

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	tree.AddDataService(services.NewRetryLoopService(loop))
	tree.AddMessagingService(consumer)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	tree.AddAPIService(hub)
	err = tree.Serve(ctx)
*/
package supervisor
