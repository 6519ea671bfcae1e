// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

/*
Package services adapts ShareSync components to suture's Serve pattern.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts ListenAndServe to Serve

Retry Loop (RetryLoopService):
  - Wraps retryqueue.Loop with its Start/Stop lifecycle
  - Stop waits for the in-flight batch

Embedded Broker (BrokerService):
  - Watches the embedded NATS server and shuts it down with the tree
  - Terminates the tree if the server dies

The event consumer and the WebSocket hub implement suture.Service
themselves and are added to the tree directly.

# Lifecycle Patterns

Start/Stop:

	func (s *Service) Serve(ctx context.Context) error {
	    if err := s.component.Start(ctx); err != nil {
	        return err
	    }
	    <-ctx.Done()
	    s.component.Stop()
	    return ctx.Err()
	}

Blocking run:

	func (s *Service) Serve(ctx context.Context) error {
	    errCh := make(chan error, 1)
	    go func() { errCh <- s.component.Run() }()
	    select {
	    case err := <-errCh:
	        return err
	    case <-ctx.Done():
	        s.component.Shutdown()
	        return ctx.Err()
	    }
	}
*/
package services
