// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/step_computer/internal/step"
)

func TestParse_DefaultsMatchPipeline(t *testing.T) {
	cfg, err := Parse(strings.NewReader("MQTT_BROKER=tcp://localhost:1883\n"))
	require.NoError(t, err)

	assert.Equal(t, step.DefaultPipelineConfig(), cfg.PipelineConfig())
	assert.Equal(t, "steps/events/fused", cfg.TopicStepFused)
}

func TestParse_Overrides(t *testing.T) {
	in := `
# broker
MQTT_BROKER = tcp://pi:1883
STEP_THRESHOLD=1.12
STEP_MIN_INTERVAL_MS=300
STEP_SMOOTHING_WINDOW=6
FUSION_GYRO_HIGH_THRESHOLD=2.5
FUSION_ENV_ALPHA=0.5
FUSION_IDLE_MS=3000
SENSOR_TARGET_HZ=100
IMU_ACCEL_RANGE=1
IMU_USE_MOCK=true
SERIAL_BAUD_RATE=9600
REDIS_STEP_LOG_LEN=50
`
	cfg, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, "tcp://pi:1883", cfg.MQTTBroker)
	assert.Equal(t, byte(1), cfg.IMUAccelRange)
	assert.True(t, cfg.IMUUseMock)
	assert.Equal(t, uint(9600), cfg.SerialBaudRate)
	assert.Equal(t, int64(50), cfg.RedisStepLogLen)

	b := cfg.BaselineConfig()
	assert.Equal(t, 1.12, b.Threshold)
	assert.Equal(t, 300*time.Millisecond, b.MinStepInterval)
	assert.Equal(t, 6, b.SmoothingWindow)

	f := cfg.FusionConfig()
	assert.Equal(t, 2.5, f.GyroHighThreshold)
	assert.Equal(t, 0.5, f.EnvAlpha)
	assert.Equal(t, 3*time.Second, f.IdleThreshold)
	assert.Equal(t, 100, cfg.PipelineConfig().TargetHz)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		msg  string
	}{
		{"missing broker", "STEP_THRESHOLD=1.1", "MQTT_BROKER"},
		{"no equals", "MQTT_BROKER=x\nGARBAGE", "invalid config line 2"},
		{"unknown key", "MQTT_BROKER=x\nFOO=1", "unknown config key"},
		{"range", "MQTT_BROKER=x\nIMU_GYRO_RANGE=4", "IMU_GYRO_RANGE must be 0-3"},
		{"not a number", "MQTT_BROKER=x\nSTEP_MIN_INTERVAL_MS=abc", "invalid STEP_MIN_INTERVAL_MS"},
		{"negative threshold", "MQTT_BROKER=x\nSTEP_THRESHOLD=-1", "must be positive"},
		{"alpha above one", "MQTT_BROKER=x\nFUSION_ENV_ALPHA=1.5", "FUSION_ENV_ALPHA"},
		{"stride order", "MQTT_BROKER=x\nFUSION_MIN_STRIDE_MS=3000", "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	_, err := Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestLoadAndGlobal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "step_config.txt")
	require.NoError(t, os.WriteFile(path, []byte("MQTT_BROKER=tcp://localhost:1883\nLOG_LEVEL=debug\n"), 0o644))

	require.NoError(t, InitGlobal(path))
	cfg := Get()
	require.NotNil(t, cfg)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Later calls are no-ops.
	require.NoError(t, InitGlobal(filepath.Join(t.TempDir(), "missing.txt")))
	assert.Same(t, cfg, Get())

	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
