// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package share

import (
	"github.com/tomtom215/sharesync/internal/graph"
)

// NormalizedDataType is the JSON:API resource type SHARE ingests.
const NormalizedDataType = "NormalizedData"

// Envelope is the request body of a normalized data push:
//
//	{"data": {"type": "NormalizedData", "attributes": {
//	    "tasks": [], "raw": null, "data": {"@graph": [...]}}}}
type Envelope struct {
	Data EnvelopeData `json:"data"`
}

// EnvelopeData is the JSON:API resource object.
type EnvelopeData struct {
	Type       string     `json:"type"`
	Attributes Attributes `json:"attributes"`
}

// Attributes carries the graph document.
type Attributes struct {
	Tasks []string `json:"tasks"`
	Raw   any      `json:"raw"`
	Data  Document `json:"data"`
}

// Document is the JSON-LD style node list.
type Document struct {
	Graph []map[string]any `json:"@graph"`
}

// NewEnvelope wraps the serialized closure of a formatted preprint.
func NewEnvelope(c *graph.Closure) *Envelope {
	nodes := c.Serialize()
	if nodes == nil {
		nodes = []map[string]any{}
	}
	return &Envelope{
		Data: EnvelopeData{
			Type: NormalizedDataType,
			Attributes: Attributes{
				Tasks: []string{},
				Data:  Document{Graph: nodes},
			},
		},
	}
}

// Len returns the number of graph nodes in the envelope.
func (e *Envelope) Len() int {
	return len(e.Data.Attributes.Data.Graph)
}
