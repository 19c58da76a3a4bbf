// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/config"
	"github.com/relabs-tech/step_computer/internal/imu"
	applog "github.com/relabs-tech/step_computer/internal/log"
	"github.com/relabs-tech/step_computer/internal/sensors"
	"github.com/relabs-tech/step_computer/internal/serialimu"
)

// sampleTopics maps each channel to its MQTT topic.
func sampleTopics(cfg *config.Config) map[imu.Kind]string {
	return map[imu.Kind]string{
		imu.KindAccel:  cfg.TopicSamplesAccel,
		imu.KindLinear: cfg.TopicSamplesLinear,
		imu.KindGyro:   cfg.TopicSamplesGyro,
	}
}

// samplePublisher publishes samples to their channel topic.
type samplePublisher struct {
	client mqtt.Client
	topics map[imu.Kind]string
	log    *zap.Logger
}

func (p *samplePublisher) publish(samples []imu.Sample) {
	for _, s := range samples {
		topic, ok := p.topics[s.Kind]
		if !ok {
			p.log.Warn("no topic for sample kind", zap.String("kind", string(s.Kind)))
			continue
		}
		if err := publishJSON(p.client, topic, false, s); err != nil {
			p.log.Warn("sample publish failed", zap.Error(err))
		}
	}
}

// RunIMUProducer polls the MPU9250 (or a synthetic walk when IMU_USE_MOCK
// is set) every IMU_SAMPLE_INTERVAL and publishes accel, linear and gyro
// samples.
func RunIMUProducer() error {
	cfg := config.Get()
	log := applog.Named("imu-producer")
	log.Info("starting IMU sample producer")

	interval := time.Duration(cfg.IMUSampleInterval) * time.Millisecond

	var src imu.Source
	if cfg.IMUUseMock {
		src = imu.NewWalkSource(walkConfigFor(interval))
		log.Info("using synthetic walk source", zap.Duration("period", interval))
	} else {
		mpu, err := sensors.NewMPU9250Source("mpu9250", cfg.IMUSPIDevice, cfg.IMUCSPin,
			cfg.IMUAccelRange, cfg.IMUGyroRange)
		if err != nil {
			return fmt.Errorf("imu producer: %w", err)
		}
		src = mpu
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return fmt.Errorf("imu producer: %w", err)
	}
	defer client.Disconnect(250)
	log.Info("connected to MQTT, starting publish loop", zap.Duration("interval", interval))

	pub := &samplePublisher{client: client, topics: sampleTopics(cfg), log: log}

	ctx, stop := signalContext()
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-ticker.C:
		}

		samples, err := src.Next()
		if err != nil {
			log.Warn("sample read error", zap.Error(err))
			continue
		}
		pub.publish(samples)
	}
}

// walkConfigFor spaces synthetic samples exactly one tick apart, so sample
// timestamps track the publish ticker at any interval.
func walkConfigFor(interval time.Duration) imu.WalkConfig {
	wc := imu.DefaultWalkConfig()
	wc.Period = interval
	return wc
}

// RunSerialProducer reads $IMACC/$IMLIN/$IMGYR sentences from SERIAL_PORT
// and publishes the samples.
func RunSerialProducer() error {
	cfg := config.Get()
	log := applog.Named("serial-producer")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDSerial)
	if err != nil {
		return fmt.Errorf("serial producer: %w", err)
	}
	defer client.Disconnect(250)
	log.Info("connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	port, err := serialimu.Open(cfg.SerialPort, cfg.SerialBaudRate)
	if err != nil {
		return fmt.Errorf("serial producer: %w", err)
	}
	defer port.Close()
	log.Info("serial port opened", zap.String("port", cfg.SerialPort), zap.Uint("baud", cfg.SerialBaudRate))

	ctx, stop := signalContext()
	defer stop()
	go func() {
		// Unblocks the reader on shutdown.
		<-ctx.Done()
		port.Close()
	}()

	pub := &samplePublisher{client: client, topics: sampleTopics(cfg), log: log}
	return pumpSamples(ctx, serialimu.NewReader(port, log), pub.publish)
}

// pumpSamples drains src into sink until the source ends or ctx is done.
func pumpSamples(ctx context.Context, src imu.Source, sink func([]imu.Sample)) error {
	for {
		samples, err := src.Next()
		if len(samples) > 0 {
			sink(samples)
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read samples: %w", err)
		}
	}
}
