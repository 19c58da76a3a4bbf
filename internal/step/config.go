// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package step

import "time"

// BaselineConfig tunes the accelerometer-only candidate detector.
// A detector copies it at construction; later changes have no effect.
type BaselineConfig struct {
	Threshold       float64       // smoothed magnitude (g) that must be exceeded
	MinStepInterval time.Duration // refractory period between candidates
	SmoothingWindow int           // moving-average length, coerced to >= 1
}

// DefaultBaselineConfig returns the balanced defaults: sensitive, but
// unlikely to double-count a single peak.
func DefaultBaselineConfig() BaselineConfig {
	return BaselineConfig{
		Threshold:       1.08,
		MinStepInterval: 250 * time.Millisecond,
		SmoothingWindow: 4,
	}
}

// FusionConfig tunes the candidate acceptance heuristics.
type FusionConfig struct {
	MinFusedInterval time.Duration

	LinearActivationThreshold float64 // g, marks the linear channel as present
	LinearStepThreshold       float64 // g, minimum envelope for a valid step

	GyroActivationThreshold float64 // rad/s, marks the gyro channel as present
	GyroHighThreshold       float64 // rad/s, strong rotation (shaking)

	EnvAlpha float64

	IdleThreshold time.Duration
	MinStride     time.Duration
	MaxStride     time.Duration
}

// DefaultFusionConfig returns the defaults used on handsets.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		MinFusedInterval:          300 * time.Millisecond,
		LinearActivationThreshold: 0.04,
		LinearStepThreshold:       0.06,
		GyroActivationThreshold:   0.5,
		GyroHighThreshold:         2.0,
		EnvAlpha:                  0.3,
		IdleThreshold:             2 * time.Second,
		MinStride:                 300 * time.Millisecond,
		MaxStride:                 2 * time.Second,
	}
}

// PipelineConfig bundles both filters plus the per-channel input rate.
type PipelineConfig struct {
	Baseline BaselineConfig
	Fusion   FusionConfig

	// TargetHz throttles every channel before it reaches a filter.
	// Zero disables throttling.
	TargetHz int
}

// DefaultPipelineConfig throttles to 50 Hz.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Baseline: DefaultBaselineConfig(),
		Fusion:   DefaultFusionConfig(),
		TargetHz: 50,
	}
}
