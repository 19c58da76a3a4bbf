// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"time"
)

// WalkConfig shapes the synthetic walking signal.
type WalkConfig struct {
	RateHz    int     // samples per second per channel
	// Period, when set, overrides RateHz; it covers rates below 1 Hz.
	Period time.Duration
	CadenceHz float64 // steps per second
	LowG      float64 // accel magnitude trough
	HighG     float64 // accel magnitude peak

	LinearAmplitude float64 // g, peak of the gravity-free channel
	GyroAmplitude   float64 // rad/s, peak rotation

	StartNanos int64 // timestamp of the first sample
}

// DefaultWalkConfig is a brisk 2 Hz walk sampled at 50 Hz.
func DefaultWalkConfig() WalkConfig {
	return WalkConfig{
		RateHz:          50,
		CadenceHz:       2,
		LowG:            0.9,
		HighG:           1.3,
		LinearAmplitude: 0.3,
		GyroAmplitude:   0.8,
		StartNanos:      int64(time.Second),
	}
}

// WalkSource generates a deterministic walking signal on all three
// channels. Timestamps advance by exactly one sample period per call so
// the output is reproducible in tests.
type WalkSource struct {
	cfg    WalkConfig
	period int64
	n      int64
}

// NewWalkSource creates a synthetic walking source.
func NewWalkSource(cfg WalkConfig) *WalkSource {
	period := int64(cfg.Period)
	if period <= 0 {
		if cfg.RateHz <= 0 {
			cfg.RateHz = 50
		}
		period = int64(time.Second) / int64(cfg.RateHz)
	}
	return &WalkSource{cfg: cfg, period: period}
}

// Period is the spacing between consecutive samples.
func (w *WalkSource) Period() time.Duration {
	return time.Duration(w.period)
}

// Next returns one accel, one linear and one gyro sample sharing a timestamp.
func (w *WalkSource) Next() ([]Sample, error) {
	t := w.cfg.StartNanos + w.n*w.period
	w.n++

	elapsed := float64(t-w.cfg.StartNanos) / float64(time.Second)
	phase := math.Sin(2 * math.Pi * w.cfg.CadenceHz * elapsed)

	mid := (w.cfg.HighG + w.cfg.LowG) / 2
	amp := (w.cfg.HighG - w.cfg.LowG) / 2

	return []Sample{
		{Kind: KindAccel, Z: mid + amp*phase, TimestampNanos: t},
		{Kind: KindLinear, Z: w.cfg.LinearAmplitude * phase, TimestampNanos: t},
		{Kind: KindGyro, X: w.cfg.GyroAmplitude * phase, TimestampNanos: t},
	}, nil
}
