// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/relabs-tech/step_computer/internal/config"
	"github.com/relabs-tech/step_computer/internal/imu"
	"github.com/relabs-tech/step_computer/internal/step"
)

// RunMockConsole runs the pipeline locally on a synthetic walk and prints
// each fused step with the running totals.
func RunMockConsole() error {
	ctx, stop := signalContext()
	defer stop()

	src := imu.NewWalkSource(imu.DefaultWalkConfig())
	ticker := time.NewTicker(src.Period())
	defer ticker.Stop()

	return runMockConsole(ctx, config.Get().PipelineConfig(), src, ticker.C, os.Stdout)
}

func runMockConsole(ctx context.Context, cfg step.PipelineConfig, src imu.Source, tick <-chan time.Time, out io.Writer) error {
	p := step.NewPipeline(cfg)
	p.OnFused(step.ListenerFunc(func(s step.Step) {
		c := p.Counts()
		// Fused count is bumped before listeners run.
		fmt.Fprintf(out, "t=%-10s Baseline: %d • Fused: %d\n",
			time.Duration(s.TimestampNanos).Truncate(time.Millisecond), c.Baseline, c.Fused)
	}))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}

		samples, err := src.Next()
		if err != nil {
			return err
		}
		for _, s := range samples {
			p.Add(s)
		}
	}
}
