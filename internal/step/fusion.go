// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package step

import (
	"sync"

	"go.uber.org/zap"
)

// Decision records what FusionFilter did with one baseline candidate.
type Decision int

const (
	// DecisionAccepted emitted one fused step.
	DecisionAccepted Decision = iota
	// DecisionAcceptedStart ended an idle period and emitted the pending
	// start step followed by the current one.
	DecisionAcceptedStart
	// DecisionRejectedLinearWeak: the linear channel is present but quiet.
	DecisionRejectedLinearWeak
	// DecisionRejectedGyroDoubleHit: too soon after the last fused step
	// while strong rotation is present.
	DecisionRejectedGyroDoubleHit
	// DecisionPendingStart recorded the first candidate after idle.
	DecisionPendingStart
	// DecisionPendingReplaced slid the pending start forward because the
	// stride to it was implausible.
	DecisionPendingReplaced
	// DecisionDropped: the candidate was older than the last fused step.
	DecisionDropped
)

var decisionNames = [...]string{
	DecisionAccepted:              "accepted",
	DecisionAcceptedStart:         "accepted_start",
	DecisionRejectedLinearWeak:    "rejected_linear_weak",
	DecisionRejectedGyroDoubleHit: "rejected_gyro_double_hit",
	DecisionPendingStart:          "pending_start",
	DecisionPendingReplaced:       "pending_replaced",
	DecisionDropped:               "dropped",
}

func (d Decision) String() string {
	if d >= 0 && int(d) < len(decisionNames) {
		return decisionNames[d]
	}
	return "unknown"
}

// Accepted reports whether the decision emitted fused steps.
func (d Decision) Accepted() bool {
	return d == DecisionAccepted || d == DecisionAcceptedStart
}

// FusionState is a point-in-time copy of the filter state.
type FusionState struct {
	LinearEnv    float64
	LinearActive bool
	GyroEnv      float64
	GyroActive   bool

	LastFusedNanos int64 // 0 until the first fused step
	PendingNanos   int64
	HasPending     bool
}

// FusionFilter accepts or rejects baseline candidates using the linear
// acceleration and gyroscope channels. It never creates steps on its own.
// If the extra channels are missing or quiet it behaves like the baseline
// detector behind a cold-start gate.
//
// OnLinearAccelSample, OnGyroSample and OnBaselineStep are mutually
// exclusive; a decision always sees fully updated envelopes.
type FusionFilter struct {
	cfg FusionConfig
	log *zap.Logger

	mu     sync.Mutex
	linear channel
	gyro   channel

	lastFused  int64
	pending    int64
	hasPending bool

	listener Listener
}

// NewFusionFilter creates a filter with a fixed configuration.
func NewFusionFilter(cfg FusionConfig, opts ...Option) *FusionFilter {
	o := buildOptions(opts)
	return &FusionFilter{
		cfg:    cfg,
		log:    o.log,
		linear: channel{name: "linear", activation: cfg.LinearActivationThreshold},
		gyro:   channel{name: "gyro", activation: cfg.GyroActivationThreshold},
	}
}

// SetListener registers the receiver of fused steps.
func (f *FusionFilter) SetListener(l Listener) {
	f.mu.Lock()
	f.listener = l
	f.mu.Unlock()
}

// OnLinearAccelSample feeds one gravity-free acceleration sample (g).
// It reports whether the sample was used.
func (f *FusionFilter) OnLinearAccelSample(ax, ay, az float64, timestampNanos int64) bool {
	return f.updateChannel(&f.linear, magnitude(ax, ay, az), timestampNanos)
}

// OnGyroSample feeds one gyroscope sample (rad/s).
func (f *FusionFilter) OnGyroSample(gx, gy, gz float64, timestampNanos int64) bool {
	return f.updateChannel(&f.gyro, magnitude(gx, gy, gz), timestampNanos)
}

func (f *FusionFilter) updateChannel(c *channel, mag float64, t int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	ok, latched := c.update(mag, t, f.cfg.EnvAlpha)
	if !ok {
		f.log.Debug("fusion: drop sample",
			zap.String("channel", c.name),
			zap.Float64("mag", mag),
			zap.Int64("t", t))
		return false
	}
	if latched {
		f.log.Debug("fusion: channel marked active",
			zap.String("channel", c.name),
			zap.Float64("mag", mag))
	}
	return true
}

// OnBaselineStep decides whether a candidate becomes a fused step.
// The rules are evaluated in order and the first one that fires wins.
func (f *FusionFilter) OnBaselineStep(timestampNanos int64) Decision {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := timestampNanos
	if f.lastFused != 0 && t < f.lastFused {
		f.log.Debug("fusion: drop stale candidate",
			zap.Int64("t", t),
			zap.Int64("last_fused", f.lastFused))
		return DecisionDropped
	}
	dtFused := t - f.lastFused

	if f.linear.active && f.linear.env < f.cfg.LinearStepThreshold {
		f.log.Debug("fusion: reject, linear too low",
			zap.Float64("linear_env", f.linear.env),
			zap.Float64("threshold", f.cfg.LinearStepThreshold))
		return DecisionRejectedLinearWeak
	}

	if f.gyro.active && dtFused < int64(f.cfg.MinFusedInterval) && f.gyro.env > f.cfg.GyroHighThreshold {
		f.log.Debug("fusion: reject, gyro double hit",
			zap.Float64("gyro_env", f.gyro.env),
			zap.Int64("dt_ms", dtFused/1e6))
		return DecisionRejectedGyroDoubleHit
	}

	longIdle := f.lastFused == 0 || dtFused > int64(f.cfg.IdleThreshold)
	if longIdle {
		if !f.hasPending {
			f.pending = t
			f.hasPending = true
			f.log.Debug("fusion: pending start step", zap.Int64("t", t))
			return DecisionPendingStart
		}

		pending := f.pending
		dtPending := t - pending
		if dtPending >= int64(f.cfg.MinStride) && dtPending <= int64(f.cfg.MaxStride) {
			f.hasPending = false
			f.pending = 0
			f.lastFused = t
			f.log.Debug("fusion: accept start",
				zap.Int64("dt_ms", dtPending/1e6),
				zap.Float64("linear_env", f.linear.env),
				zap.Float64("gyro_env", f.gyro.env))
			f.emit(pending)
			f.emit(t)
			return DecisionAcceptedStart
		}

		f.pending = t
		f.log.Debug("fusion: replace pending start step", zap.Int64("dt_ms", dtPending/1e6))
		return DecisionPendingReplaced
	}

	f.hasPending = false
	f.pending = 0
	f.lastFused = t
	f.log.Debug("fusion: accept",
		zap.Float64("linear_env", f.linear.env),
		zap.Float64("gyro_env", f.gyro.env),
		zap.Int64("dt_ms", dtFused/1e6))
	f.emit(t)
	return DecisionAccepted
}

func (f *FusionFilter) emit(t int64) {
	if f.listener != nil {
		f.listener.OnStep(Step{TimestampNanos: t})
	}
}

// State returns a copy of the current filter state.
func (f *FusionFilter) State() FusionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FusionState{
		LinearEnv:      f.linear.env,
		LinearActive:   f.linear.active,
		GyroEnv:        f.gyro.env,
		GyroActive:     f.gyro.active,
		LastFusedNanos: f.lastFused,
		PendingNanos:   f.pending,
		HasPending:     f.hasPending,
	}
}
