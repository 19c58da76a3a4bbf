// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package step

import "github.com/google/uuid"

// EventKind tells candidate and fused step events apart on the bus.
type EventKind string

const (
	EventCandidate EventKind = "candidate"
	EventFused     EventKind = "fused"
)

// Event is the wire shape of a step published to MQTT, NATS, Redis and
// the websocket stream.
type Event struct {
	Session        string    `json:"session"`
	Kind           EventKind `json:"kind"`
	TimestampNanos int64     `json:"timestamp_ns"`
	Count          int64     `json:"count"`              // running total for Kind
	Decision       string    `json:"decision,omitempty"` // fused events only
}

// NewSessionID returns a fresh identifier for one detector run.
func NewSessionID() string {
	return uuid.NewString()
}
