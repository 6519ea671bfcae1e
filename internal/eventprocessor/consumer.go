// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/sharesync/internal/config"
	"github.com/tomtom215/sharesync/internal/database"
	"github.com/tomtom215/sharesync/internal/dispatcher"
	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/metrics"
	"github.com/tomtom215/sharesync/internal/preprint"
)

// ErrMalformedEvent marks payloads that can never be handled.
var ErrMalformedEvent = errors.New("malformed preprint event")

// EventHandler processes one decoded event.
type EventHandler interface {
	HandleEvent(ctx context.Context, e preprint.Event) error
}

// SubscriberFactory returns a subscriber for one router run.
type SubscriberFactory interface {
	NewSubscriber() (message.Subscriber, error)
}

// Consumer feeds the event topic to an EventHandler. It implements
// suture.Service; every Serve call builds a new router.
type Consumer struct {
	cfg         *config.MessagingConfig
	subscribers SubscriberFactory
	poison      message.Publisher
	handler     EventHandler
	logger      watermill.LoggerAdapter

	running     chan struct{}
	runningOnce sync.Once
}

// NewConsumer validates its inputs. poison receives messages that still
// fail after the router's retries; nil disables the poison topic.
func NewConsumer(cfg *config.MessagingConfig, subs SubscriberFactory, poison message.Publisher, handler EventHandler, logger watermill.LoggerAdapter) (*Consumer, error) {
	if cfg == nil || subs == nil || handler == nil {
		return nil, errors.New("eventprocessor: config, subscriber factory and handler are required")
	}
	if logger == nil {
		logger = NewLogger()
	}
	return &Consumer{
		cfg:         cfg,
		subscribers: subs,
		poison:      poison,
		handler:     handler,
		logger:      logger,
		running:     make(chan struct{}),
	}, nil
}

// Running is closed once the first router has subscribed.
func (c *Consumer) Running() <-chan struct{} {
	return c.running
}

// Serve runs the router until ctx ends.
func (c *Consumer) Serve(ctx context.Context) error {
	router, err := c.newRouter()
	if err != nil {
		return err
	}

	sub, err := c.subscribers.NewSubscriber()
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	router.AddConsumerHandler("preprint-dispatcher", c.cfg.Topic, sub, c.Handle)

	go func() {
		select {
		case <-router.Running():
			c.runningOnce.Do(func() { close(c.running) })
		case <-ctx.Done():
		}
	}()

	logging.Info().Str("topic", c.cfg.Topic).Msg("Event consumer started")
	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("event router: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (c *Consumer) String() string {
	return "event-consumer"
}

// newRouter applies middleware outermost first: correlation id, poison
// topic, retry, panic recovery.
func (c *Consumer) newRouter() (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: c.cfg.CloseTimeout,
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	router.AddMiddleware(middleware.CorrelationID)

	if c.poison != nil && c.cfg.PoisonTopic != "" {
		poisonQueue, err := middleware.PoisonQueue(c.poison, c.cfg.PoisonTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		router.AddMiddleware(poisonQueue)
	}

	retry := middleware.Retry{
		MaxRetries:      c.cfg.RetryCount,
		InitialInterval: c.cfg.RetryInterval,
		MaxInterval:     10 * c.cfg.RetryInterval,
		Multiplier:      2,
		Logger:          c.logger,
	}
	router.AddMiddleware(retry.Middleware, middleware.Recoverer)

	return router, nil
}

// Handle decodes one message and passes it to the handler. Missing
// preprints and providers without credentials are acknowledged; other
// handler errors are returned for redelivery.
func (c *Consumer) Handle(msg *message.Message) error {
	ctx := msg.Context()
	if id := middleware.MessageCorrelationID(msg); id != "" {
		ctx = logging.ContextWithCorrelationID(ctx, id)
	}

	event, err := DecodeEvent(msg.Payload)
	if err != nil {
		metrics.RecordConsumed("failed")
		logging.Ctx(ctx).Error().Err(err).Str("message_uuid", msg.UUID).Msg("Rejecting preprint event")
		return err
	}
	ctx = logging.ContextWithPreprintID(ctx, event.PreprintID)

	err = c.handler.HandleEvent(ctx, event)
	switch {
	case err == nil:
		metrics.RecordConsumed("handled")
		return nil
	case errors.Is(err, database.ErrPreprintNotFound), errors.Is(err, dispatcher.ErrMissingCredential):
		metrics.RecordConsumed("dropped")
		logging.Ctx(ctx).Warn().Err(err).Msg("Dropping preprint event")
		return nil
	default:
		metrics.RecordConsumed("failed")
		return err
	}
}

// DecodeEvent parses and validates an event payload.
func DecodeEvent(payload []byte) (preprint.Event, error) {
	var e preprint.Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return preprint.Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if err := e.Validate(); err != nil {
		return preprint.Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return e, nil
}
