// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/relabs-tech/step_computer/internal/step"
)

// Metrics are the Prometheus series exported by the detector and the web
// service. Each process registers its own set on its own registry.
type Metrics struct {
	Candidates prometheus.Counter
	Fused      prometheus.Counter
	Decisions  *prometheus.CounterVec
	Dropped    prometheus.Gauge
	Envelope   *prometheus.GaugeVec

	SinkErrors   *prometheus.CounterVec
	QueueDropped prometheus.Counter
	Injected     prometheus.Counter

	WebEvents  *prometheus.CounterVec
	WebClients prometheus.Gauge
}

// NewMetrics creates the series on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Candidates: f.NewCounter(prometheus.CounterOpts{
			Name: "step_candidates_total",
			Help: "Baseline step candidates detected",
		}),
		Fused: f.NewCounter(prometheus.CounterOpts{
			Name: "step_fused_total",
			Help: "Steps accepted by the fusion filter",
		}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "step_fusion_decisions_total",
			Help: "Fusion filter decisions by outcome",
		}, []string{"decision"}),
		Dropped: f.NewGauge(prometheus.GaugeOpts{
			Name: "step_samples_dropped",
			Help: "Samples dropped as non-finite or out of order",
		}),
		Envelope: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "step_fusion_envelope",
			Help: "Current fusion envelope per channel",
		}, []string{"channel"}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "step_sink_errors_total",
			Help: "Failed event deliveries per sink",
		}, []string{"sink"}),
		QueueDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "step_event_queue_dropped_total",
			Help: "Events dropped because the sink queue was full",
		}),
		Injected: f.NewCounter(prometheus.CounterOpts{
			Name: "step_emulator_injected_total",
			Help: "Steps handed to the emulator",
		}),
		WebEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "step_web_events_total",
			Help: "Step events received by the web service",
		}, []string{"kind"}),
		WebClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "step_web_clients",
			Help: "Connected websocket clients",
		}),
	}
}

// ObserveDecision counts one fusion decision.
func (m *Metrics) ObserveDecision(d step.Decision) {
	m.Decisions.WithLabelValues(d.String()).Inc()
}

// ObserveState copies pipeline counters and envelopes into gauges.
func (m *Metrics) ObserveState(c step.Counts, s step.FusionState) {
	m.Dropped.Set(float64(c.Dropped))
	m.Envelope.WithLabelValues("linear").Set(s.LinearEnv)
	m.Envelope.WithLabelValues("gyro").Set(s.GyroEnv)
}
