// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package alerting

import (
	"github.com/tomtom215/sharesync/internal/config"
)

// FromConfig builds the fan-out of every configured channel. The log
// channel is always present.
func FromConfig(cfg *config.AlertingConfig) *Multi {
	sinks := []Sink{LogSink{}}
	if email := NewEmailSink(cfg); email != nil {
		sinks = append(sinks, email)
	}
	if webhook := NewWebhookSink(cfg); webhook != nil {
		sinks = append(sinks, webhook)
	}
	return NewMulti(sinks...)
}
