// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bus fans step events out over NATS for consumers that do not
// speak MQTT.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/relabs-tech/step_computer/internal/step"
)

// Connect dials url and keeps reconnecting forever.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: nats connect %s: %w", url, err)
	}
	return nc, nil
}

// Publisher is the subset of *nats.Conn the step publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// StepPublisher publishes events on <subject>.<kind>, e.g. steps.fused.
type StepPublisher struct {
	pub     Publisher
	subject string
}

// NewStepPublisher wraps pub.
func NewStepPublisher(pub Publisher, subject string) *StepPublisher {
	return &StepPublisher{pub: pub, subject: subject}
}

// Subject returns the subject an event of kind is published on.
func (p *StepPublisher) Subject(kind step.EventKind) string {
	return p.subject + "." + string(kind)
}

// Publish encodes ev as JSON and publishes it.
func (p *StepPublisher) Publish(ev step.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bus: marshal event: %w", err)
	}
	if err := p.pub.Publish(p.Subject(ev.Kind), data); err != nil {
		return fmt.Errorf("bus: publish %s: %w", p.Subject(ev.Kind), err)
	}
	return nil
}
