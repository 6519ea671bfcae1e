// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package eventprocessor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/sharesync/internal/coalesce"
	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/preprint"
)

// MetadataPreprintID carries the preprint id on every message.
const MetadataPreprintID = "preprint_id"

var _ coalesce.Publisher = (*EventPublisher)(nil)

// EventPublisher serializes committed preprint events onto the event topic.
type EventPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewEventPublisher wraps a Watermill publisher.
func NewEventPublisher(pub message.Publisher, topic string) (*EventPublisher, error) {
	if pub == nil {
		return nil, errors.New("eventprocessor: publisher is required")
	}
	if topic == "" {
		return nil, errors.New("eventprocessor: topic is required")
	}
	return &EventPublisher{publisher: pub, topic: topic}, nil
}

// Publish sends events in order as one batch. The correlation id from ctx
// is propagated so consumer log lines join the request that committed them.
func (p *EventPublisher) Publish(ctx context.Context, events ...preprint.Event) error {
	if len(events) == 0 {
		return nil
	}

	correlationID := logging.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = logging.GenerateCorrelationID()
	}

	msgs := make([]*message.Message, 0, len(events))
	for i := range events {
		msg, err := newEventMessage(&events[i], correlationID)
		if err != nil {
			return err
		}
		msg.SetContext(ctx)
		msgs = append(msgs, msg)
	}

	if err := p.publisher.Publish(p.topic, msgs...); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

func newEventMessage(e *preprint.Event, correlationID string) (*message.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event for %s: %w", e.PreprintID, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.Metadata.Set(MetadataPreprintID, e.PreprintID)
	middleware.SetCorrelationID(correlationID, msg)
	return msg, nil
}
