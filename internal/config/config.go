// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/step_computer/internal/step"
)

// ErrMissingKey is wrapped by validate when a required key is absent.
var ErrMissingKey = errors.New("required config key missing")

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDSerial   string
	MQTTClientIDDetector string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string

	// Topics
	TopicSamplesAccel  string
	TopicSamplesLinear string
	TopicSamplesGyro   string
	TopicStepCandidate string
	TopicStepFused     string
	TopicEmulatorSteps string

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte
	IMUUseMock   bool

	// Serial sample stream
	SerialPort     string
	SerialBaudRate uint

	// Timing
	IMUSampleInterval int // milliseconds
	SensorTargetHz    int

	// Baseline detector
	StepThreshold       float64
	StepMinIntervalMS   int
	StepSmoothingWindow int

	// Fusion filter
	FusionMinIntervalMS       int
	FusionLinearActivation    float64
	FusionLinearStepThreshold float64
	FusionGyroActivation      float64
	FusionGyroHighThreshold   float64
	FusionEnvAlpha            float64
	FusionIdleMS              int
	FusionMinStrideMS         int
	FusionMaxStrideMS         int

	// Sinks
	RedisAddr        string
	RedisKeyPrefix   string
	RedisStepLogLen  int64
	NATSURL          string
	NATSSubjectSteps string
	EventQueueSize   int

	// Web Server
	WebServerPort int
	// Detector /metrics listener; 0 disables it
	MetricsPort int

	LogLevel string
}

// Package-level unexported variables for the singleton:
//   - globalConfig is only reachable through InitGlobal and Get.
//   - configOnce makes InitGlobal load at most once.
//   - configMu guards reads against the one write.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns a Config with every optional key at its default. Step
// tuning defaults match step.DefaultPipelineConfig.
func Defaults() *Config {
	b := step.DefaultBaselineConfig()
	f := step.DefaultFusionConfig()
	return &Config{
		MQTTClientIDProducer: "step-imu-producer",
		MQTTClientIDSerial:   "step-serial-producer",
		MQTTClientIDDetector: "step-detector",
		MQTTClientIDConsole:  "step-console-subscriber",
		MQTTClientIDWeb:      "step-web-subscriber",

		TopicSamplesAccel:  "steps/samples/accel",
		TopicSamplesLinear: "steps/samples/linear",
		TopicSamplesGyro:   "steps/samples/gyro",
		TopicStepCandidate: "steps/events/candidate",
		TopicStepFused:     "steps/events/fused",
		TopicEmulatorSteps: "steps/emulator/add",

		SerialBaudRate: 115200,

		IMUSampleInterval: 20,
		SensorTargetHz:    50,

		StepThreshold:       b.Threshold,
		StepMinIntervalMS:   int(b.MinStepInterval / time.Millisecond),
		StepSmoothingWindow: b.SmoothingWindow,

		FusionMinIntervalMS:       int(f.MinFusedInterval / time.Millisecond),
		FusionLinearActivation:    f.LinearActivationThreshold,
		FusionLinearStepThreshold: f.LinearStepThreshold,
		FusionGyroActivation:      f.GyroActivationThreshold,
		FusionGyroHighThreshold:   f.GyroHighThreshold,
		FusionEnvAlpha:            f.EnvAlpha,
		FusionIdleMS:              int(f.IdleThreshold / time.Millisecond),
		FusionMinStrideMS:         int(f.MinStride / time.Millisecond),
		FusionMaxStrideMS:         int(f.MaxStride / time.Millisecond),

		RedisKeyPrefix:   "steps",
		RedisStepLogLen:  1000,
		NATSSubjectSteps: "steps",
		EventQueueSize:   1024,

		WebServerPort: 8080,
		MetricsPort:   9102,
		LogLevel:      "info",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Defaults()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string, min, max int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, min, max, v)
	}
	return v, nil
}

func parsePositiveFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %g", key, v)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_SERIAL":
		c.MQTTClientIDSerial = value
	case "MQTT_CLIENT_ID_DETECTOR":
		c.MQTTClientIDDetector = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_SAMPLES_ACCEL":
		c.TopicSamplesAccel = value
	case "TOPIC_SAMPLES_LINEAR":
		c.TopicSamplesLinear = value
	case "TOPIC_SAMPLES_GYRO":
		c.TopicSamplesGyro = value
	case "TOPIC_STEP_CANDIDATE":
		c.TopicStepCandidate = value
	case "TOPIC_STEP_FUSED":
		c.TopicStepFused = value
	case "TOPIC_EMULATOR_STEPS":
		c.TopicEmulatorSteps = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		v, err := parseInt(key, value, 0, 3)
		if err != nil {
			return err
		}
		c.IMUAccelRange = byte(v)
	case "IMU_GYRO_RANGE":
		v, err := parseInt(key, value, 0, 3)
		if err != nil {
			return err
		}
		c.IMUGyroRange = byte(v)
	case "IMU_USE_MOCK":
		c.IMUUseMock, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_USE_MOCK %q: %w", value, err)
		}

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		v, err := parseInt(key, value, 1200, 4000000)
		if err != nil {
			return err
		}
		c.SerialBaudRate = uint(v)

	// Timing
	case "IMU_SAMPLE_INTERVAL":
		if c.IMUSampleInterval, err = parseInt(key, value, 1, 10000); err != nil {
			return err
		}
	case "SENSOR_TARGET_HZ":
		if c.SensorTargetHz, err = parseInt(key, value, 0, 1000); err != nil {
			return err
		}

	// Baseline detector
	case "STEP_THRESHOLD":
		if c.StepThreshold, err = parsePositiveFloat(key, value); err != nil {
			return err
		}
	case "STEP_MIN_INTERVAL_MS":
		if c.StepMinIntervalMS, err = parseInt(key, value, 0, 10000); err != nil {
			return err
		}
	case "STEP_SMOOTHING_WINDOW":
		if c.StepSmoothingWindow, err = parseInt(key, value, 1, 256); err != nil {
			return err
		}

	// Fusion filter
	case "FUSION_MIN_INTERVAL_MS":
		if c.FusionMinIntervalMS, err = parseInt(key, value, 0, 10000); err != nil {
			return err
		}
	case "FUSION_LINEAR_ACTIVATION":
		if c.FusionLinearActivation, err = parsePositiveFloat(key, value); err != nil {
			return err
		}
	case "FUSION_LINEAR_STEP_THRESHOLD":
		if c.FusionLinearStepThreshold, err = parsePositiveFloat(key, value); err != nil {
			return err
		}
	case "FUSION_GYRO_ACTIVATION":
		if c.FusionGyroActivation, err = parsePositiveFloat(key, value); err != nil {
			return err
		}
	case "FUSION_GYRO_HIGH_THRESHOLD":
		if c.FusionGyroHighThreshold, err = parsePositiveFloat(key, value); err != nil {
			return err
		}
	case "FUSION_ENV_ALPHA":
		v, err := parsePositiveFloat(key, value)
		if err != nil {
			return err
		}
		if v > 1 {
			return fmt.Errorf("FUSION_ENV_ALPHA must be in (0, 1], got %g", v)
		}
		c.FusionEnvAlpha = v
	case "FUSION_IDLE_MS":
		if c.FusionIdleMS, err = parseInt(key, value, 0, 600000); err != nil {
			return err
		}
	case "FUSION_MIN_STRIDE_MS":
		if c.FusionMinStrideMS, err = parseInt(key, value, 0, 60000); err != nil {
			return err
		}
	case "FUSION_MAX_STRIDE_MS":
		if c.FusionMaxStrideMS, err = parseInt(key, value, 0, 60000); err != nil {
			return err
		}

	// Sinks
	case "REDIS_ADDR":
		c.RedisAddr = value
	case "REDIS_KEY_PREFIX":
		c.RedisKeyPrefix = value
	case "REDIS_STEP_LOG_LEN":
		v, err := parseInt(key, value, 1, 1000000)
		if err != nil {
			return err
		}
		c.RedisStepLogLen = int64(v)
	case "NATS_URL":
		c.NATSURL = value
	case "NATS_SUBJECT_STEPS":
		c.NATSSubjectSteps = value
	case "EVENT_QUEUE_SIZE":
		if c.EventQueueSize, err = parseInt(key, value, 1, 1000000); err != nil {
			return err
		}

	// Web Server
	case "WEB_SERVER_PORT":
		if c.WebServerPort, err = parseInt(key, value, 1, 65535); err != nil {
			return err
		}

	case "METRICS_PORT":
		if c.MetricsPort, err = parseInt(key, value, 0, 65535); err != nil {
			return err
		}

	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set and consistent.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER: %w", ErrMissingKey)
	}
	if c.FusionMinStrideMS > c.FusionMaxStrideMS {
		return fmt.Errorf("FUSION_MIN_STRIDE_MS (%d) exceeds FUSION_MAX_STRIDE_MS (%d)",
			c.FusionMinStrideMS, c.FusionMaxStrideMS)
	}
	return nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// BaselineConfig builds the immutable detector configuration.
func (c *Config) BaselineConfig() step.BaselineConfig {
	return step.BaselineConfig{
		Threshold:       c.StepThreshold,
		MinStepInterval: millis(c.StepMinIntervalMS),
		SmoothingWindow: c.StepSmoothingWindow,
	}
}

// FusionConfig builds the immutable fusion configuration.
func (c *Config) FusionConfig() step.FusionConfig {
	return step.FusionConfig{
		MinFusedInterval:          millis(c.FusionMinIntervalMS),
		LinearActivationThreshold: c.FusionLinearActivation,
		LinearStepThreshold:       c.FusionLinearStepThreshold,
		GyroActivationThreshold:   c.FusionGyroActivation,
		GyroHighThreshold:         c.FusionGyroHighThreshold,
		EnvAlpha:                  c.FusionEnvAlpha,
		IdleThreshold:             millis(c.FusionIdleMS),
		MinStride:                 millis(c.FusionMinStrideMS),
		MaxStride:                 millis(c.FusionMaxStrideMS),
	}
}

// PipelineConfig combines both filter configurations with the input rate.
func (c *Config) PipelineConfig() step.PipelineConfig {
	return step.PipelineConfig{
		Baseline: c.BaselineConfig(),
		Fusion:   c.FusionConfig(),
		TargetHz: c.SensorTargetHz,
	}
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once so only the first call loads anything.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
