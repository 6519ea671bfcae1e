// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package services

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/sharesync/internal/logging"
)

// Broker is the lifecycle of *eventprocessor.EmbeddedServer.
type Broker interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// BrokerService owns the embedded NATS server once it has been started.
//
// The server cannot be restarted in place: publishers and consumers hold
// connections to it. If it dies the service terminates the whole tree so
// the process exits and its orchestrator restarts it.
type BrokerService struct {
	broker          Broker
	checkInterval   time.Duration
	shutdownTimeout time.Duration
	name            string
}

// NewBrokerService wraps a running broker.
func NewBrokerService(broker Broker, shutdownTimeout time.Duration) *BrokerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &BrokerService{
		broker:          broker,
		checkInterval:   5 * time.Second,
		shutdownTimeout: shutdownTimeout,
		name:            "embedded-broker",
	}
}

// Serve implements suture.Service. The broker is shut down when ctx ends.
func (s *BrokerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.broker.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			if !s.broker.IsRunning() {
				logging.Error().Str("service", s.name).Msg("Embedded broker stopped unexpectedly, terminating")
				return suture.ErrTerminateSupervisorTree
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *BrokerService) String() string {
	return s.name
}
