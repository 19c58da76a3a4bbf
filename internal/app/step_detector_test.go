// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/step_computer/internal/step"
)

func TestWorkerGroup_StopWaitsForWorkers(t *testing.T) {
	var finished atomic.Int32
	slow := func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Add(1)
	}

	// The parent is never cancelled: stop alone must end the workers, as on
	// an early error return.
	g := startWorkers(context.Background(), slow, slow)
	g.stop()

	assert.Equal(t, int32(2), finished.Load())
}

func TestWorkerGroup_DispatcherDrainsBeforeStopReturns(t *testing.T) {
	sink := &fakeSink{name: "s"}
	d := NewDispatcher(16, NewMetrics(prometheus.NewRegistry()), nil, sink)
	for i := 0; i < 10; i++ {
		d.Enqueue(step.Event{Kind: step.EventFused})
	}

	g := startWorkers(context.Background(), d.Run)
	g.stop()

	assert.Len(t, sink.received(), 10)
}
