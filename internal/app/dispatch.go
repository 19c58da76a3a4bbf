// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/bus"
	"github.com/relabs-tech/step_computer/internal/step"
	"github.com/relabs-tech/step_computer/internal/store"
)

// EventSink receives step events off the sensor path.
type EventSink interface {
	Name() string
	Send(ctx context.Context, ev step.Event) error
}

// Dispatcher queues step events and delivers them to every sink from a
// single worker goroutine. Enqueue never blocks; when the queue is full the
// event is dropped and counted.
type Dispatcher struct {
	queue   chan step.Event
	sinks   []EventSink
	metrics *Metrics
	log     *zap.Logger
}

// NewDispatcher creates a dispatcher with a queue of size events.
func NewDispatcher(size int, metrics *Metrics, log *zap.Logger, sinks ...EventSink) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		queue:   make(chan step.Event, size),
		sinks:   sinks,
		metrics: metrics,
		log:     log,
	}
}

// Enqueue hands ev to the worker. It reports false if the queue was full.
func (d *Dispatcher) Enqueue(ev step.Event) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		if d.metrics != nil {
			d.metrics.QueueDropped.Inc()
		}
		d.log.Warn("dispatch: queue full, event dropped",
			zap.String("kind", string(ev.Kind)), zap.Int64("count", ev.Count))
		return false
	}
}

// Run delivers events until ctx is done, then drains what is queued.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev step.Event) {
	for _, s := range d.sinks {
		if err := s.Send(ctx, ev); err != nil {
			if d.metrics != nil {
				d.metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			}
			d.log.Warn("dispatch: sink failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}

// mqttSink publishes events as JSON on the candidate or fused topic.
type mqttSink struct {
	client         mqtt.Client
	topicCandidate string
	topicFused     string
}

func (s *mqttSink) Name() string { return "mqtt" }

func (s *mqttSink) Send(_ context.Context, ev step.Event) error {
	topic := s.topicCandidate
	if ev.Kind == step.EventFused {
		topic = s.topicFused
	}
	return publishJSON(s.client, topic, false, ev)
}

// redisSink appends events to the Redis step log.
type redisSink struct {
	log *store.RedisStepLog
}

func (s *redisSink) Name() string { return "redis" }

func (s *redisSink) Send(ctx context.Context, ev step.Event) error {
	return s.log.Store(ctx, ev)
}

// natsSink publishes fused events over NATS.
type natsSink struct {
	pub *bus.StepPublisher
}

func (s *natsSink) Name() string { return "nats" }

func (s *natsSink) Send(_ context.Context, ev step.Event) error {
	if ev.Kind != step.EventFused {
		return nil
	}
	return s.pub.Publish(ev)
}

// publishJSON marshals v and publishes it with QoS 0.
func publishJSON(client mqtt.Client, topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	token := client.Publish(topic, 0, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// connectMQTT connects with the given client id.
func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// subscribeJSON subscribes to topic and decodes every payload into a new T.
func subscribeJSON[T any](client mqtt.Client, topic string, log *zap.Logger, handle func(T)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var v T
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			log.Warn("mqtt: payload unmarshal error", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		handle(v)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	log.Info("mqtt: subscribed", zap.String("topic", topic))
	return nil
}
