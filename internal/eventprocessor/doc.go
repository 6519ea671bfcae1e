// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

/*
Package eventprocessor carries committed preprint update events from the
ingest API to the sync dispatcher.

Architecture:

	API unit of work --Commit--> EventPublisher --> topic preprints.updated
	                                                      |
	                                 Watermill router (Consumer)
	                                   CorrelationID
	                                   PoisonQueue --> preprints.poison
	                                   Retry
	                                   Recoverer
	                                                      |
	                                          Dispatcher.HandleEvent

Two backends are supported:

  - nats: NATS JetStream through watermill-nats, either against an external
    server or an embedded nats-server started in-process. Messages carry a
    Nats-Msg-Id header so JetStream drops duplicate publishes inside the
    stream's duplicate window.
  - memory: Watermill's gochannel, for tests and single-process setups.
    The channel is persistent, so events published while the consumer is
    restarting are delivered once it subscribes again, and Publish blocks
    until the consumer acks.

The router retries handler errors at the transport level only. Sync
outcomes (success, SHARE rejection, transient failure queued for retry) are
decided by the dispatcher and never cause a redelivery; payloads that fail
to decode or validate end up on the poison topic.
*/
package eventprocessor
