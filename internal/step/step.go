// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package step turns inertial sample streams into step events.
//
// Two filters form the pipeline. BaselineDetector watches the smoothed
// accelerometer magnitude and emits candidate steps on a thresholded rising
// edge. FusionFilter accepts or rejects those candidates using envelopes of
// the linear-acceleration and gyroscope channels plus an idle gate, and emits
// fused steps. All timestamps are monotonic sensor-clock nanoseconds.
package step

import (
	"math"

	"go.uber.org/zap"
)

// Step is a single step event, candidate or fused.
type Step struct {
	TimestampNanos int64 `json:"timestamp_ns"`
}

// Listener receives step events. OnStep runs synchronously on the
// goroutine that fed the sample, while the emitting filter holds its lock:
// implementations must return quickly and must not call back into the
// filter that emitted the event.
type Listener interface {
	OnStep(Step)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(Step)

// OnStep calls f(s).
func (f ListenerFunc) OnStep(s Step) { f(s) }

// Option configures a filter at construction.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger sets the logger used for per-decision debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
