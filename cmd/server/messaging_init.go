// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/sharesync/internal/config"
	"github.com/tomtom215/sharesync/internal/eventprocessor"
	"github.com/tomtom215/sharesync/internal/logging"
)

// MessagingComponents holds the post-commit event transport.
type MessagingComponents struct {
	// broker is nil unless the embedded NATS server is enabled.
	broker    *eventprocessor.EmbeddedServer
	transport *eventprocessor.Transport
	publisher *eventprocessor.EventPublisher
	logger    watermill.LoggerAdapter
}

// InitMessaging starts the embedded broker when configured, provisions the
// JetStream stream and opens the publisher.
func InitMessaging(ctx context.Context, cfg *config.MessagingConfig) (*MessagingComponents, error) {
	components := &MessagingComponents{logger: eventprocessor.NewLogger()}

	var url string
	if cfg.Backend == eventprocessor.BackendNATS {
		if cfg.EmbeddedServer {
			broker, err := eventprocessor.NewEmbeddedServer(cfg)
			if err != nil {
				return nil, err
			}
			components.broker = broker
			url = broker.ClientURL()
		} else {
			url = cfg.URL
			logging.Info().Str("url", url).Msg("Using external NATS server")
		}

		if err := eventprocessor.EnsureStream(ctx, url, cfg); err != nil {
			components.shutdownBroker()
			return nil, fmt.Errorf("provision stream: %w", err)
		}
	}

	transport, err := eventprocessor.NewTransport(cfg, url, components.logger)
	if err != nil {
		components.shutdownBroker()
		return nil, err
	}
	components.transport = transport

	publisher, err := eventprocessor.NewEventPublisher(transport.Publisher, cfg.Topic)
	if err != nil {
		components.Close()
		return nil, err
	}
	components.publisher = publisher

	logging.Info().
		Str("backend", transport.Backend).
		Str("topic", cfg.Topic).
		Bool("embedded_server", components.broker != nil).
		Msg("Event messaging initialized")
	return components, nil
}

// Close closes the publisher. The broker is shut down by its supervisor
// service, or here when the tree never started.
func (c *MessagingComponents) Close() {
	if c == nil {
		return
	}
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing event publisher")
		}
	}
}

func (c *MessagingComponents) shutdownBroker() {
	if c.broker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.broker.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Msg("Error shutting down embedded NATS server")
	}
}
