// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"math"
)

// GravityEarth is standard gravity in m/s².
const GravityEarth = 9.80665

// Kind names a sensor channel.
type Kind string

const (
	KindAccel  Kind = "accel"  // raw acceleration, g (resting magnitude 1.0)
	KindLinear Kind = "linear" // acceleration with gravity removed, g
	KindGyro   Kind = "gyro"   // angular rate, rad/s
)

// ParseKind validates a channel name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAccel, KindLinear, KindGyro:
		return k, nil
	}
	return "", fmt.Errorf("unknown sample kind %q", s)
}

// Sample is one three-axis reading. Samples are ephemeral: filters never
// retain them after processing.
type Sample struct {
	Kind Kind    `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`

	TimestampNanos int64 `json:"timestamp_ns"` // monotonic sensor clock
}

// Magnitude is the Euclidean norm of the three axes.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Source is anything that can provide samples over time. A single call may
// return samples for several channels taken at the same instant.
type Source interface {
	Next() ([]Sample, error)
}

// NormalizeAccel converts m/s² to g units.
func NormalizeAccel(x, y, z float64) (float64, float64, float64) {
	return x / GravityEarth, y / GravityEarth, z / GravityEarth
}
