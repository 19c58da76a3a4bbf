// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package step

import (
	"sync"
	"time"
)

// Throttle drops samples that arrive closer together than the target
// interval, so downstream filters see a steady rate regardless of how fast
// the platform delivers.
type Throttle struct {
	interval int64

	mu   sync.Mutex
	last int64
	seen bool
}

// NewThrottle passes at most hz samples per second. hz <= 0 passes everything.
func NewThrottle(hz int) *Throttle {
	var interval int64
	if hz > 0 {
		interval = int64(time.Second) / int64(hz)
	}
	return &Throttle{interval: interval}
}

// Allow reports whether a sample at t is far enough from the last marked
// sample. Samples older than the last mark pass so the filter behind the
// throttle can reject and count them.
func (th *Throttle) Allow(t int64) bool {
	th.mu.Lock()
	defer th.mu.Unlock()
	if th.interval == 0 || !th.seen || t < th.last {
		return true
	}
	return t-th.last >= th.interval
}

// Mark records t as the last sample the filter accepted.
func (th *Throttle) Mark(t int64) {
	th.mu.Lock()
	defer th.mu.Unlock()
	if !th.seen || t > th.last {
		th.last = t
		th.seen = true
	}
}
