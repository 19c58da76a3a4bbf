// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package step

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/step_computer/internal/imu"
)

func walkSamples(t *testing.T, cfg imu.WalkConfig, d time.Duration) [][]imu.Sample {
	t.Helper()
	src := imu.NewWalkSource(cfg)
	n := int(d / src.Period())
	out := make([][]imu.Sample, 0, n)
	for i := 0; i < n; i++ {
		batch, err := src.Next()
		require.NoError(t, err)
		out = append(out, batch)
	}
	return out
}

func TestBaselineDetector_SyntheticWalk(t *testing.T) {
	d, rec := newRecordedBaseline(DefaultBaselineConfig())

	for _, batch := range walkSamples(t, imu.DefaultWalkConfig(), 5*time.Second) {
		for _, s := range batch {
			if s.Kind == imu.KindAccel {
				d.AddSample(s.X, s.Y, s.Z, s.TimestampNanos)
			}
		}
	}

	steps := rec.all()
	assert.GreaterOrEqual(t, len(steps), 9)
	assert.LessOrEqual(t, len(steps), 11)
	for i := 1; i < len(steps); i++ {
		assert.GreaterOrEqual(t, steps[i]-steps[i-1], int64(250*time.Millisecond))
	}
}

func TestPipeline_WalkAllChannels(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())
	candidates := &recorder{}
	fused := &recorder{}
	p.OnCandidate(candidates)
	p.OnFused(fused)

	decisions := map[Decision]int{}
	p.OnDecision(func(_ Step, d Decision) { decisions[d]++ })

	for _, batch := range walkSamples(t, imu.DefaultWalkConfig(), 5*time.Second) {
		for _, s := range batch {
			p.Add(s)
		}
	}

	st := p.FusionState()
	assert.True(t, st.LinearActive)
	assert.True(t, st.GyroActive)

	c := p.Counts()
	assert.Equal(t, int64(len(candidates.all())), c.Baseline)
	assert.Equal(t, int64(len(fused.all())), c.Fused)
	// First candidate is provisional; the second confirms both.
	assert.Equal(t, 1, decisions[DecisionPendingStart])
	assert.Equal(t, 1, decisions[DecisionAcceptedStart])
	assert.Equal(t, c.Baseline, c.Fused)
	assert.Equal(t, candidates.all(), fused.all())
}

func TestPipeline_Throttle(t *testing.T) {
	cfg := DefaultPipelineConfig()
	p := NewPipeline(cfg)

	assert.True(t, p.AddGyroSample(0.1, 0, 0, sec))
	assert.False(t, p.AddGyroSample(0.1, 0, 0, sec+5*ms), "closer than 20ms")
	assert.True(t, p.AddGyroSample(0.1, 0, 0, sec+20*ms))
	// Channels throttle independently.
	assert.True(t, p.AddLinearAccelSample(0.1, 0, 0, sec+5*ms))
}

func TestPipeline_CountsDropped(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.TargetHz = 0
	p := NewPipeline(cfg)

	p.AddAccelSample(0, 0, 1, 2*sec)
	assert.False(t, p.AddAccelSample(0, 0, 1, sec))
	assert.True(t, p.Add(imu.Sample{Kind: imu.KindGyro, X: 1, TimestampNanos: 2 * sec}))
	assert.False(t, p.Add(imu.Sample{Kind: imu.KindGyro, X: 1, TimestampNanos: sec}))
	assert.False(t, p.Add(imu.Sample{Kind: "mag"}))

	assert.Equal(t, int64(2), p.Counts().Dropped)
}

func TestPipeline_ConcurrentChannels(t *testing.T) {
	cfg := DefaultPipelineConfig()
	p := NewPipeline(cfg)
	fused := &recorder{}
	p.OnFused(fused)

	batches := walkSamples(t, imu.DefaultWalkConfig(), 10*time.Second)

	var wg sync.WaitGroup
	for _, kind := range []imu.Kind{imu.KindAccel, imu.KindLinear, imu.KindGyro} {
		wg.Add(1)
		go func(kind imu.Kind) {
			defer wg.Done()
			for _, batch := range batches {
				for _, s := range batch {
					if s.Kind == kind {
						p.Add(s)
					}
				}
			}
		}(kind)
	}
	wg.Wait()

	c := p.Counts()
	assert.Equal(t, int64(len(fused.all())), c.Fused)
	assert.LessOrEqual(t, c.Fused, c.Baseline)
	steps := fused.all()
	for i := 1; i < len(steps); i++ {
		assert.Greater(t, steps[i], steps[i-1])
	}
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(50)
	assert.True(t, th.Allow(0))
	th.Mark(0)
	assert.False(t, th.Allow(19*ms))
	assert.True(t, th.Allow(20*ms))
	th.Mark(20 * ms)
	assert.True(t, th.Allow(45*ms))

	// Unmarked samples do not move the window.
	assert.True(t, th.Allow(40*ms))
	assert.False(t, th.Allow(39*ms))

	// Older samples pass through to the filter's own ordering check.
	assert.True(t, th.Allow(5*ms))
	th.Mark(5 * ms)
	assert.False(t, th.Allow(30*ms), "a stale mark must not rewind the window")

	open := NewThrottle(0)
	assert.True(t, open.Allow(sec))
	open.Mark(sec)
	assert.True(t, open.Allow(sec))
	assert.True(t, open.Allow(sec-ms))
}

func TestPipeline_StaleSamplesCountedAtTargetRate(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())

	assert.True(t, p.AddAccelSample(0, 0, 1, 2*sec))
	assert.False(t, p.AddAccelSample(0, 0, 1, sec))
	assert.True(t, p.AddLinearAccelSample(0.1, 0, 0, 2*sec))
	assert.False(t, p.AddLinearAccelSample(0.1, 0, 0, sec))
	// Inside the 20ms window: throttled, not dropped.
	assert.False(t, p.AddAccelSample(0, 0, 1, 2*sec+5*ms))

	assert.Equal(t, int64(2), p.Counts().Dropped)
}

func TestPipeline_RejectedSampleKeepsThrottleSlot(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())

	require.True(t, p.AddGyroSample(0.1, 0, 0, sec))
	assert.False(t, p.AddGyroSample(math.NaN(), 0, 0, sec+20*ms))
	assert.True(t, p.AddGyroSample(3, 0, 0, sec+30*ms), "valid sample after a NaN must not be throttled")

	assert.Equal(t, int64(1), p.Counts().Dropped)
	// 0.03*0.7 + 3*0.3
	assert.InDelta(t, 0.921, p.FusionState().GyroEnv, 1e-9)
}
