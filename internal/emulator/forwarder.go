// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package emulator forwards fused steps to the handheld emulator's step
// counter without blocking the sensor path.
package emulator

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/step"
)

// Injector is the emulator side: it credits n walked steps.
type Injector interface {
	AddSteps(n int)
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(n int)

// AddSteps calls f(n).
func (f InjectorFunc) AddSteps(n int) { f(n) }

// Forwarder is a step.Listener. OnStep only bumps a counter and pokes the
// worker; Run drains the counter into the Injector, so bursts that arrive
// while the injector is busy are delivered as one AddSteps call.
type Forwarder struct {
	inj Injector
	log *zap.Logger

	mu      sync.Mutex
	pending int
	wake    chan struct{}

	injected atomic.Int64
}

// NewForwarder returns a Forwarder feeding inj. Call Run to start delivery.
func NewForwarder(inj Injector, log *zap.Logger) *Forwarder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Forwarder{
		inj:  inj,
		log:  log,
		wake: make(chan struct{}, 1),
	}
}

// OnStep implements step.Listener. It never blocks.
func (f *Forwarder) OnStep(step.Step) {
	f.mu.Lock()
	f.pending++
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Run delivers pending steps until ctx is done, then flushes what is left.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.flush()
			return
		case <-f.wake:
			f.flush()
		}
	}
}

func (f *Forwarder) flush() {
	f.mu.Lock()
	n := f.pending
	f.pending = 0
	f.mu.Unlock()

	if n == 0 {
		return
	}
	f.inj.AddSteps(n)
	f.injected.Add(int64(n))
	f.log.Debug("emulator: steps injected", zap.Int("n", n))
}

// Pending is the number of steps not yet handed to the injector.
func (f *Forwarder) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// Injected is the total number of steps handed to the injector.
func (f *Forwarder) Injected() int64 {
	return f.injected.Load()
}
