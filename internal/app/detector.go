// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"sync"

	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/imu"
	"github.com/relabs-tech/step_computer/internal/step"
)

// Detector runs the step pipeline for one session and turns its output
// into events. All listener work is non-blocking: events go to the
// dispatcher queue and fused steps to the emulator forwarder.
type Detector struct {
	session  string
	pipeline *step.Pipeline
	metrics  *Metrics
	events   *Dispatcher
	log      *zap.Logger

	mu      sync.Mutex
	batch   []step.Step // fused steps of the candidate being decided
	onFused []step.Listener
}

// NewDetector builds a pipeline from cfg. metrics and events may be nil.
func NewDetector(cfg step.PipelineConfig, metrics *Metrics, events *Dispatcher, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Detector{
		session:  step.NewSessionID(),
		pipeline: step.NewPipeline(cfg, step.WithLogger(log.Named("step"))),
		metrics:  metrics,
		events:   events,
		log:      log,
	}
	d.pipeline.OnCandidate(step.ListenerFunc(d.candidate))
	d.pipeline.OnFused(step.ListenerFunc(d.fused))
	d.pipeline.OnDecision(d.decided)
	return d
}

// Session identifies this detector run on every event.
func (d *Detector) Session() string { return d.session }

// ForwardFused registers an extra listener for fused steps, e.g. the
// emulator forwarder. It must not block.
func (d *Detector) ForwardFused(l step.Listener) {
	d.mu.Lock()
	d.onFused = append(d.onFused, l)
	d.mu.Unlock()
}

// Handle feeds one sample into the pipeline.
func (d *Detector) Handle(s imu.Sample) bool {
	ok := d.pipeline.Add(s)
	if d.metrics != nil {
		d.metrics.ObserveState(d.pipeline.Counts(), d.pipeline.FusionState())
	}
	return ok
}

// Counts returns the pipeline totals.
func (d *Detector) Counts() step.Counts {
	return d.pipeline.Counts()
}

func (d *Detector) candidate(s step.Step) {
	if d.metrics != nil {
		d.metrics.Candidates.Inc()
	}
	d.publish(step.Event{
		Session:        d.session,
		Kind:           step.EventCandidate,
		TimestampNanos: s.TimestampNanos,
		Count:          d.pipeline.Counts().Baseline,
	})
}

// fused runs inside the fusion decision; the step is held until the
// decision hook names the rule that produced it.
func (d *Detector) fused(s step.Step) {
	d.mu.Lock()
	d.batch = append(d.batch, s)
	listeners := d.onFused
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.Fused.Inc()
	}
	for _, l := range listeners {
		l.OnStep(s)
	}
}

func (d *Detector) decided(candidate step.Step, dec step.Decision) {
	if d.metrics != nil {
		d.metrics.ObserveDecision(dec)
	}

	d.mu.Lock()
	batch := d.batch
	d.batch = nil
	d.mu.Unlock()

	if len(batch) == 0 {
		d.log.Debug("candidate not fused",
			zap.Int64("t", candidate.TimestampNanos), zap.Stringer("decision", dec))
		return
	}

	total := d.pipeline.Counts().Fused
	for i, s := range batch {
		d.publish(step.Event{
			Session:        d.session,
			Kind:           step.EventFused,
			TimestampNanos: s.TimestampNanos,
			Count:          total - int64(len(batch)-1-i),
			Decision:       dec.String(),
		})
	}
}

func (d *Detector) publish(ev step.Event) {
	if d.events != nil {
		d.events.Enqueue(ev)
	}
}
