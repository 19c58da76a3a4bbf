// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/step_computer/internal/imu"
	applog "github.com/relabs-tech/step_computer/internal/log"
)

// MPU9250Source reads an MPU9250 over SPI and yields step pipeline samples.
type MPU9250Source struct {
	name  string
	dev   *mpu9250.MPU9250
	conv  *Converter
	start time.Time
	log   *zap.Logger
}

var (
	_ imu.Source       = (*MPU9250Source)(nil)
	_ imu.IMURawReader = (*MPU9250Source)(nil)
)

// NewMPU9250Source initializes the IMU on spiDev with chip select csPin.
func NewMPU9250Source(name, spiDev, csPin string, accelRange, gyroRange byte) (*MPU9250Source, error) {
	l := applog.Named("sensors").With(zap.String("imu", name))

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: periph host init: %w", name, err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, spiDev, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	if err := dev.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set accel range: %w", name, err)
	}
	l.Info("accelerometer range set",
		zap.Uint8("code", accelRange),
		zap.Int("g", []int{2, 4, 8, 16}[accelRange&3]))

	if err := dev.SetGyroRange(gyroRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set gyro range: %w", name, err)
	}
	l.Info("gyroscope range set",
		zap.Uint8("code", gyroRange),
		zap.Int("dps", []int{250, 500, 1000, 2000}[gyroRange&3]))

	// Calibration failure is not fatal: the step filters only look at
	// magnitudes and envelopes, which tolerate a small bias.
	if err := dev.Calibrate(); err != nil {
		l.Warn("calibration failed", zap.Error(err))
	} else {
		l.Info("calibration complete")
	}

	return &MPU9250Source{
		name:  name,
		dev:   dev,
		conv:  NewConverter(accelRange, gyroRange),
		start: time.Now(),
		log:   l,
	}, nil
}

// ReadRaw reads accelerometer and gyroscope counts.
func (s *MPU9250Source) ReadRaw() (imu.IMURaw, error) {
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel X: %w", s.name, err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Y: %w", s.name, err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Z: %w", s.name, err)
	}

	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro X: %w", s.name, err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Y: %w", s.name, err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Z: %w", s.name, err)
	}

	return imu.IMURaw{
		Source: s.name,
		Ax:     ax,
		Ay:     ay,
		Az:     az,
		Gx:     gx,
		Gy:     gy,
		Gz:     gz,
	}, nil
}

// Next reads the device once and returns accel, linear and gyro samples
// stamped with a monotonic clock.
func (s *MPU9250Source) Next() ([]imu.Sample, error) {
	raw, err := s.ReadRaw()
	if err != nil {
		return nil, err
	}
	// time.Since uses the monotonic reading; offset by one second so no
	// sample sits near the zero "never" timestamp of the filters.
	t := time.Since(s.start).Nanoseconds() + int64(time.Second)
	return s.conv.Convert(raw, t), nil
}
