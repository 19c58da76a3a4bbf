// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package step

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/imu"
)

// Counts is a snapshot of the pipeline counters.
type Counts struct {
	Baseline int64 `json:"baseline"`
	Fused    int64 `json:"fused"`
	Dropped  int64 `json:"dropped"` // non-finite or out-of-order input
}

// DecisionHook observes every fusion decision.
type DecisionHook func(candidate Step, d Decision)

// Pipeline wires a BaselineDetector into a FusionFilter and fans fused
// steps out to listeners. Accelerometer samples drive the detector; linear
// and gyro samples only update the fusion envelopes.
type Pipeline struct {
	baseline *BaselineDetector
	fusion   *FusionFilter

	throttles map[imu.Kind]*Throttle

	mu         sync.RWMutex
	candidates []Listener
	fused      []Listener
	hooks      []DecisionHook

	baselineCount atomic.Int64
	fusedCount    atomic.Int64
	droppedCount  atomic.Int64

	log *zap.Logger
}

// NewPipeline builds both filters from cfg.
func NewPipeline(cfg PipelineConfig, opts ...Option) *Pipeline {
	o := buildOptions(opts)
	p := &Pipeline{
		baseline: NewBaselineDetector(cfg.Baseline, opts...),
		fusion:   NewFusionFilter(cfg.Fusion, opts...),
		throttles: map[imu.Kind]*Throttle{
			imu.KindAccel:  NewThrottle(cfg.TargetHz),
			imu.KindLinear: NewThrottle(cfg.TargetHz),
			imu.KindGyro:   NewThrottle(cfg.TargetHz),
		},
		log: o.log,
	}
	p.baseline.SetListener(ListenerFunc(p.onCandidate))
	p.fusion.SetListener(ListenerFunc(p.onFused))
	return p
}

// OnCandidate registers a listener for baseline candidates.
func (p *Pipeline) OnCandidate(l Listener) {
	p.mu.Lock()
	p.candidates = append(p.candidates, l)
	p.mu.Unlock()
}

// OnFused registers a listener for fused steps.
func (p *Pipeline) OnFused(l Listener) {
	p.mu.Lock()
	p.fused = append(p.fused, l)
	p.mu.Unlock()
}

// OnDecision registers a hook called after every fusion decision.
func (p *Pipeline) OnDecision(h DecisionHook) {
	p.mu.Lock()
	p.hooks = append(p.hooks, h)
	p.mu.Unlock()
}

// Add routes a sample to its channel. It reports whether the sample
// passed the rate throttle and was used by its filter.
func (p *Pipeline) Add(s imu.Sample) bool {
	switch s.Kind {
	case imu.KindAccel:
		return p.AddAccelSample(s.X, s.Y, s.Z, s.TimestampNanos)
	case imu.KindLinear:
		return p.AddLinearAccelSample(s.X, s.Y, s.Z, s.TimestampNanos)
	case imu.KindGyro:
		return p.AddGyroSample(s.X, s.Y, s.Z, s.TimestampNanos)
	}
	p.log.Warn("pipeline: unknown sample kind", zap.String("kind", string(s.Kind)))
	return false
}

// AddAccelSample feeds the baseline detector (g units).
func (p *Pipeline) AddAccelSample(ax, ay, az float64, t int64) bool {
	th := p.throttles[imu.KindAccel]
	if !th.Allow(t) {
		return false
	}
	if _, ok := p.baseline.add(ax, ay, az, t); !ok {
		p.droppedCount.Add(1)
		return false
	}
	th.Mark(t)
	return true
}

// AddLinearAccelSample feeds the linear envelope (g units).
func (p *Pipeline) AddLinearAccelSample(ax, ay, az float64, t int64) bool {
	th := p.throttles[imu.KindLinear]
	if !th.Allow(t) {
		return false
	}
	if !p.fusion.OnLinearAccelSample(ax, ay, az, t) {
		p.droppedCount.Add(1)
		return false
	}
	th.Mark(t)
	return true
}

// AddGyroSample feeds the gyro envelope (rad/s).
func (p *Pipeline) AddGyroSample(gx, gy, gz float64, t int64) bool {
	th := p.throttles[imu.KindGyro]
	if !th.Allow(t) {
		return false
	}
	if !p.fusion.OnGyroSample(gx, gy, gz, t) {
		p.droppedCount.Add(1)
		return false
	}
	th.Mark(t)
	return true
}

func (p *Pipeline) onCandidate(s Step) {
	p.baselineCount.Add(1)

	p.mu.RLock()
	for _, l := range p.candidates {
		l.OnStep(s)
	}
	p.mu.RUnlock()

	d := p.fusion.OnBaselineStep(s.TimestampNanos)
	if d == DecisionDropped {
		p.droppedCount.Add(1)
	}

	p.mu.RLock()
	for _, h := range p.hooks {
		h(s, d)
	}
	p.mu.RUnlock()
}

func (p *Pipeline) onFused(s Step) {
	p.fusedCount.Add(1)

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, l := range p.fused {
		l.OnStep(s)
	}
}

// Counts returns the baseline and fused totals so far.
func (p *Pipeline) Counts() Counts {
	return Counts{
		Baseline: p.baselineCount.Load(),
		Fused:    p.fusedCount.Load(),
		Dropped:  p.droppedCount.Load(),
	}
}

// FusionState exposes the fusion filter state for observability.
func (p *Pipeline) FusionState() FusionState {
	return p.fusion.State()
}
