// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	applog "github.com/relabs-tech/step_computer/internal/log"
	"github.com/relabs-tech/step_computer/internal/imu"
	"github.com/relabs-tech/step_computer/internal/step"
)

// replayHeader is the first row of a recording.
var replayHeader = []string{"kind", "timestamp_ns", "x", "y", "z"}

// ReplayReport summarises one offline run.
type ReplayReport struct {
	Samples int
	Skipped int // malformed rows
	Used    int // samples past the throttle and input checks
	Counts  step.Counts

	Duration     time.Duration // first to last fused step
	StrideMean   time.Duration
	StrideStdDev time.Duration
	CadenceHz    float64 // 1 / mean stride
}

// String renders the report for the console.
func (r ReplayReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "samples:   %d (used %d, skipped %d)\n", r.Samples, r.Used, r.Skipped)
	fmt.Fprintf(&b, "Baseline: %d • Fused: %d (dropped %d)\n", r.Counts.Baseline, r.Counts.Fused, r.Counts.Dropped)
	if r.Counts.Fused > 1 {
		fmt.Fprintf(&b, "stride:    %s ± %s over %s\n",
			r.StrideMean.Round(time.Millisecond), r.StrideStdDev.Round(time.Millisecond), r.Duration.Round(time.Millisecond))
		fmt.Fprintf(&b, "cadence:   %.2f steps/s\n", r.CadenceHz)
	}
	return b.String()
}

// Replay runs every row of r through a fresh pipeline. Malformed rows are
// counted and skipped; a header row is optional.
func Replay(r io.Reader, cfg step.PipelineConfig, log *zap.Logger) (ReplayReport, error) {
	if log == nil {
		log = zap.NewNop()
	}

	p := step.NewPipeline(cfg, step.WithLogger(log))
	var fused []int64
	p.OnFused(step.ListenerFunc(func(s step.Step) {
		fused = append(fused, s.TimestampNanos)
	}))

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	var rep ReplayReport
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("replay: line %d: %w", line, err)
		}
		if line == 1 && len(rec) > 0 && rec[0] == replayHeader[0] {
			continue
		}

		s, err := parseReplayRow(rec)
		if err != nil {
			rep.Skipped++
			log.Debug("replay: skip row", zap.Int("line", line), zap.Error(err))
			continue
		}
		rep.Samples++
		if p.Add(s) {
			rep.Used++
		}
	}

	rep.Counts = p.Counts()
	rep.fillStrides(fused)
	return rep, nil
}

func (r *ReplayReport) fillStrides(fused []int64) {
	if len(fused) < 2 {
		return
	}
	strides := make([]float64, 0, len(fused)-1)
	for i := 1; i < len(fused); i++ {
		strides = append(strides, float64(fused[i]-fused[i-1]))
	}
	mean, std := stat.MeanStdDev(strides, nil)
	r.Duration = time.Duration(fused[len(fused)-1] - fused[0])
	r.StrideMean = time.Duration(mean)
	r.StrideStdDev = time.Duration(std)
	if mean > 0 {
		r.CadenceHz = float64(time.Second) / mean
	}
}

func parseReplayRow(rec []string) (imu.Sample, error) {
	if len(rec) != len(replayHeader) {
		return imu.Sample{}, fmt.Errorf("want %d fields, got %d", len(replayHeader), len(rec))
	}
	kind, err := imu.ParseKind(strings.TrimSpace(rec[0]))
	if err != nil {
		return imu.Sample{}, err
	}
	t, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
	if err != nil {
		return imu.Sample{}, fmt.Errorf("timestamp_ns: %w", err)
	}
	var v [3]float64
	for i := range v {
		if v[i], err = strconv.ParseFloat(strings.TrimSpace(rec[2+i]), 64); err != nil {
			return imu.Sample{}, fmt.Errorf("%s: %w", replayHeader[2+i], err)
		}
	}
	return imu.Sample{Kind: kind, TimestampNanos: t, X: v[0], Y: v[1], Z: v[2]}, nil
}

// WriteReplayCSV records samples in the format Replay reads.
func WriteReplayCSV(w io.Writer, samples []imu.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(replayHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			string(s.Kind),
			strconv.FormatInt(s.TimestampNanos, 10),
			strconv.FormatFloat(s.X, 'g', -1, 64),
			strconv.FormatFloat(s.Y, 'g', -1, 64),
			strconv.FormatFloat(s.Z, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RunReplay replays a CSV recording and prints the report.
func RunReplay(path string, cfg step.PipelineConfig, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	rep, err := Replay(f, cfg, applog.Named("replay"))
	if err != nil {
		return err
	}
	fmt.Fprint(out, rep.String())
	return nil
}

// RecordWalk writes d worth of synthetic walking samples to path.
func RecordWalk(path string, d time.Duration) error {
	src := imu.NewWalkSource(imu.DefaultWalkConfig())
	n := int(d / src.Period())

	var samples []imu.Sample
	for i := 0; i < n; i++ {
		batch, err := src.Next()
		if err != nil {
			return err
		}
		samples = append(samples, batch...)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if err := WriteReplayCSV(f, samples); err != nil {
		f.Close()
		return fmt.Errorf("record: %w", err)
	}
	return f.Close()
}
