// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"

	"github.com/relabs-tech/step_computer/internal/imu"
)

// AccelCountsPerG is the MPU9250 accelerometer sensitivity for a range
// code (0=±2g .. 3=±16g).
func AccelCountsPerG(rangeCode byte) float64 {
	return 16384.0 / float64(int(1)<<(rangeCode&3))
}

// GyroCountsPerDPS is the MPU9250 gyroscope sensitivity for a range code
// (0=±250°/s .. 3=±2000°/s).
func GyroCountsPerDPS(rangeCode byte) float64 {
	return 131.0 / float64(int(1)<<(rangeCode&3))
}

// GravityFilter estimates gravity with a first-order low-pass so it can be
// subtracted from raw acceleration, giving the linear-acceleration channel
// that handset platforms provide as a virtual sensor.
type GravityFilter struct {
	Alpha float64

	gravity [3]float64
	primed  bool
}

// NewGravityFilter uses the usual 0.8 smoothing factor.
func NewGravityFilter() *GravityFilter {
	return &GravityFilter{Alpha: 0.8}
}

// Linear returns acceleration with the current gravity estimate removed.
// The first call primes the estimate, so it returns zero.
func (g *GravityFilter) Linear(ax, ay, az float64) (float64, float64, float64) {
	in := [3]float64{ax, ay, az}
	if !g.primed {
		g.gravity = in
		g.primed = true
	}
	var out [3]float64
	for i := range in {
		g.gravity[i] = g.Alpha*g.gravity[i] + (1-g.Alpha)*in[i]
		out[i] = in[i] - g.gravity[i]
	}
	return out[0], out[1], out[2]
}

// Converter turns raw counts into the three sample channels.
type Converter struct {
	accelScale float64
	gyroScale  float64
	gravity    *GravityFilter
}

// NewConverter builds a converter for the configured ranges.
func NewConverter(accelRange, gyroRange byte) *Converter {
	return &Converter{
		accelScale: AccelCountsPerG(accelRange),
		gyroScale:  GyroCountsPerDPS(gyroRange),
		gravity:    NewGravityFilter(),
	}
}

// Convert maps one raw read taken at t to accel (g), linear (g) and gyro
// (rad/s) samples.
func (c *Converter) Convert(raw imu.IMURaw, t int64) []imu.Sample {
	ax := float64(raw.Ax) / c.accelScale
	ay := float64(raw.Ay) / c.accelScale
	az := float64(raw.Az) / c.accelScale
	lx, ly, lz := c.gravity.Linear(ax, ay, az)

	toRad := math.Pi / 180 / c.gyroScale
	return []imu.Sample{
		{Kind: imu.KindAccel, X: ax, Y: ay, Z: az, TimestampNanos: t},
		{Kind: imu.KindLinear, X: lx, Y: ly, Z: lz, TimestampNanos: t},
		{
			Kind:           imu.KindGyro,
			X:              float64(raw.Gx) * toRad,
			Y:              float64(raw.Gy) * toRad,
			Z:              float64(raw.Gz) * toRad,
			TimestampNanos: t,
		},
	}
}
