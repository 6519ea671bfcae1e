// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package eventprocessor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/sharesync/internal/config"
	"github.com/tomtom215/sharesync/internal/logging"
)

// Backends.
const (
	BackendNATS   = "nats"
	BackendMemory = "memory"
)

// Transport owns the publisher for one backend and creates subscribers on
// demand. The router closes its subscriber when it stops, so each router
// run takes a fresh one from NewSubscriber.
type Transport struct {
	Publisher message.Publisher
	Backend   string

	cfg     *config.MessagingConfig
	url     string
	logger  watermill.LoggerAdapter
	channel *gochannel.GoChannel

	// handled holds uuids the memory backend has seen acked, so the replay
	// a persistent gochannel performs on resubscribe skips them.
	handledMu sync.Mutex
	handled   map[string]struct{}
}

// NewLogger returns a Watermill logger backed by the global zerolog logger.
func NewLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLogger())
}

// NewTransport builds the configured backend. For nats, url overrides
// cfg.URL when non-empty (the embedded server's client URL).
func NewTransport(cfg *config.MessagingConfig, url string, logger watermill.LoggerAdapter) (*Transport, error) {
	if logger == nil {
		logger = NewLogger()
	}

	switch cfg.Backend {
	case BackendMemory:
		ch := NewMemoryPubSub(logger)
		return &Transport{
			Publisher: ch,
			Backend:   BackendMemory,
			cfg:       cfg,
			logger:    logger,
			channel:   ch,
			handled:   make(map[string]struct{}),
		}, nil

	case BackendNATS:
		if url == "" {
			url = cfg.URL
		}
		pub, err := newNATSPublisher(url, logger)
		if err != nil {
			return nil, err
		}
		return &Transport{Publisher: pub, Backend: BackendNATS, cfg: cfg, url: url, logger: logger}, nil

	default:
		return nil, fmt.Errorf("unknown messaging backend %q", cfg.Backend)
	}
}

// NewMemoryPubSub returns an in-process gochannel pub/sub. Messages are
// kept for subscribers that arrive later, and Publish waits for the
// subscriber's ack so one batch is handled in publish order. Every event
// stays in memory for the life of the process; production uses nats.
func NewMemoryPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		Persistent:                     true,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
}

// NewSubscriber returns a subscriber owned by the caller. For the memory
// backend it shares the transport's channel and closing it is a no-op.
func (t *Transport) NewSubscriber() (message.Subscriber, error) {
	if t.channel != nil {
		return memorySubscriber{t}, nil
	}
	return newNATSSubscriber(t.cfg, t.url, t.logger)
}

// Close closes the publisher.
func (t *Transport) Close() error {
	if err := t.Publisher.Close(); err != nil {
		return fmt.Errorf("close %s publisher: %w", t.Backend, err)
	}
	return nil
}

// memorySubscriber keeps the gochannel open across router restarts and
// hands messages over one at a time. Messages acked in an earlier run are
// acked again and skipped when the gochannel replays them.
type memorySubscriber struct {
	t *Transport
}

func (s memorySubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	in, err := s.t.channel.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	out := make(chan *message.Message)
	go func() {
		defer close(out)
		for msg := range in {
			if s.t.wasHandled(msg.UUID) {
				msg.Ack()
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
			select {
			case <-msg.Acked():
				s.t.markHandled(msg.UUID)
			case <-msg.Nacked():
			case <-ctx.Done():
				select {
				case <-msg.Acked():
					s.t.markHandled(msg.UUID)
				default:
				}
				return
			}
		}
	}()
	return out, nil
}

func (memorySubscriber) Close() error { return nil }

func (t *Transport) wasHandled(uuid string) bool {
	t.handledMu.Lock()
	defer t.handledMu.Unlock()
	_, ok := t.handled[uuid]
	return ok
}

func (t *Transport) markHandled(uuid string) {
	t.handledMu.Lock()
	t.handled[uuid] = struct{}{}
	t.handledMu.Unlock()
}

func natsOptions(logger watermill.LoggerAdapter, name string) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name(name),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, watermill.LogFields{"client": name})
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"client": name, "url": nc.ConnectedUrl()})
		}),
	}
}

func newNATSPublisher(url string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOptions(logger, "sharesync-publisher"),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

func newNATSSubscriber(cfg *config.MessagingConfig, url string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(cfg.MaxDeliver),
		natsgo.AckWait(cfg.AckWait),
		natsgo.DeliverAll(),
		natsgo.BindStream(cfg.Stream),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   cfg.AckWait,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOptions(logger, "sharesync-subscriber"),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	return sub, nil
}
