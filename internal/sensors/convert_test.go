// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/step_computer/internal/imu"
)

func TestSensitivity(t *testing.T) {
	assert.Equal(t, 16384.0, AccelCountsPerG(0))
	assert.Equal(t, 8192.0, AccelCountsPerG(1))
	assert.Equal(t, 2048.0, AccelCountsPerG(3))
	assert.Equal(t, 131.0, GyroCountsPerDPS(0))
	assert.Equal(t, 16.375, GyroCountsPerDPS(3))
}

func TestGravityFilter(t *testing.T) {
	g := NewGravityFilter()

	x, y, z := g.Linear(0, 0, 1)
	assert.Zero(t, x)
	assert.Zero(t, y)
	assert.Zero(t, z)

	// A sudden 0.5 g push shows up almost entirely as linear acceleration.
	_, _, z = g.Linear(0, 0, 1.5)
	assert.InDelta(t, 0.4, z, 1e-9)

	// Holding it lets the gravity estimate catch up.
	for i := 0; i < 200; i++ {
		_, _, z = g.Linear(0, 0, 1.5)
	}
	assert.InDelta(t, 0, z, 1e-6)
}

func TestConverter_Convert(t *testing.T) {
	c := NewConverter(0, 0)

	raw := imu.IMURaw{Az: 16384, Gx: 131}
	out := c.Convert(raw, 42)
	require.Len(t, out, 3)

	assert.Equal(t, imu.KindAccel, out[0].Kind)
	assert.InDelta(t, 1.0, out[0].Magnitude(), 1e-12)
	assert.Equal(t, int64(42), out[0].TimestampNanos)

	assert.Equal(t, imu.KindLinear, out[1].Kind)
	assert.Zero(t, out[1].Magnitude())

	assert.Equal(t, imu.KindGyro, out[2].Kind)
	assert.InDelta(t, math.Pi/180, out[2].X, 1e-12)
}
