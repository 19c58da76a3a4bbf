// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/step_computer/internal/step"
)

type fakeSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []step.Event
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Send(_ context.Context, ev step.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeSink) received() []step.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]step.Event(nil), f.events...)
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	good := &fakeSink{name: "good"}
	bad := &fakeSink{name: "bad", err: errors.New("down")}
	d := NewDispatcher(8, m, nil, good, bad)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	for i := int64(1); i <= 3; i++ {
		require.True(t, d.Enqueue(step.Event{Kind: step.EventFused, Count: i}))
	}

	require.Eventually(t, func() bool { return len(bad.received()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	got := good.received()
	require.Len(t, got, 3)
	for i, ev := range got {
		assert.Equal(t, int64(i+1), ev.Count, "delivery keeps queue order")
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("bad")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("good")))
}

func TestDispatcher_QueueFull(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(2, m, nil)

	assert.True(t, d.Enqueue(step.Event{}))
	assert.True(t, d.Enqueue(step.Event{}))
	assert.False(t, d.Enqueue(step.Event{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueDropped))
}

func TestDispatcher_DrainsOnShutdown(t *testing.T) {
	sink := &fakeSink{name: "s"}
	d := NewDispatcher(4, nil, nil, sink)
	for i := 0; i < 4; i++ {
		d.Enqueue(step.Event{Kind: step.EventCandidate})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.Len(t, sink.received(), 4)
}
