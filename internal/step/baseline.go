// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package step

import (
	"sync"

	"go.uber.org/zap"
)

// BaselineDetector is a real-time, accelerometer-only step detector.
// It smooths the acceleration magnitude with a short moving average and
// reports a candidate step on each rising edge over the threshold that is
// at least MinStepInterval after the previous one.
//
// AddSample calls are serialized by an internal mutex.
type BaselineDetector struct {
	threshold   float64
	minInterval int64

	log *zap.Logger

	mu       sync.Mutex
	recent   []float64
	next     int
	filled   int
	wasAbove bool
	lastStep int64

	lastSample int64
	seen       bool

	listener Listener
}

// NewBaselineDetector creates a detector with a fixed configuration.
func NewBaselineDetector(cfg BaselineConfig, opts ...Option) *BaselineDetector {
	o := buildOptions(opts)
	window := cfg.SmoothingWindow
	if window < 1 {
		window = 1
	}
	return &BaselineDetector{
		threshold:   cfg.Threshold,
		minInterval: int64(cfg.MinStepInterval),
		log:         o.log,
		recent:      make([]float64, window),
	}
}

// SetListener registers the receiver of candidate steps. Nil disables
// delivery.
func (d *BaselineDetector) SetListener(l Listener) {
	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()
}

// AddSample feeds one accelerometer sample in g units and reports whether
// it produced a candidate step.
//
// Samples with a non-finite magnitude, or older than the previous sample,
// are dropped without touching the detector state.
func (d *BaselineDetector) AddSample(ax, ay, az float64, timestampNanos int64) bool {
	emitted, _ := d.add(ax, ay, az, timestampNanos)
	return emitted
}

func (d *BaselineDetector) add(ax, ay, az float64, timestampNanos int64) (emitted, ok bool) {
	mag := magnitude(ax, ay, az)

	d.mu.Lock()
	defer d.mu.Unlock()

	if !finite(mag) || (d.seen && timestampNanos < d.lastSample) {
		d.log.Debug("baseline: drop sample",
			zap.Float64("mag", mag),
			zap.Int64("t", timestampNanos),
			zap.Int64("last_t", d.lastSample))
		return false, false
	}
	d.lastSample = timestampNanos
	d.seen = true

	d.recent[d.next] = mag
	d.next = (d.next + 1) % len(d.recent)
	if d.filled < len(d.recent) {
		d.filled++
	}

	var sum float64
	for i := 0; i < d.filled; i++ {
		sum += d.recent[i]
	}
	smoothed := sum / float64(d.filled)

	nowAbove := smoothed > d.threshold

	if !d.wasAbove && nowAbove && timestampNanos-d.lastStep > d.minInterval {
		d.lastStep = timestampNanos
		emitted = true
		d.log.Debug("baseline: candidate",
			zap.Int64("t", timestampNanos),
			zap.Float64("smoothed", smoothed))
		if d.listener != nil {
			d.listener.OnStep(Step{TimestampNanos: timestampNanos})
		}
	}

	// The edge is consumed even when the refractory check rejects it.
	d.wasAbove = nowAbove
	return emitted, true
}
