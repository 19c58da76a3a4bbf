// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package step

// decay is applied per sample whenever the smoothed value does not exceed
// the current envelope.
const decay = 0.98

// updateEnvelope rises immediately toward a new peak and otherwise decays
// by 2% per sample.
func updateEnvelope(env, value, alpha float64) float64 {
	filtered := env*(1-alpha) + value*alpha
	if filtered > env {
		return filtered
	}
	return env * decay
}

// channel is the per-sensor state kept by FusionFilter.
type channel struct {
	name       string
	activation float64

	env    float64
	active bool // latched on the first sample above activation, never reset

	lastSample int64
	seen       bool
}

// update applies one sample magnitude. It reports whether the sample was
// used and whether it latched the channel active.
func (c *channel) update(mag float64, t int64, alpha float64) (accepted, latched bool) {
	if !finite(mag) || (c.seen && t < c.lastSample) {
		return false, false
	}
	c.lastSample = t
	c.seen = true

	c.env = updateEnvelope(c.env, mag, alpha)
	if !c.active && mag > c.activation {
		c.active = true
		return true, true
	}
	return true, false
}
