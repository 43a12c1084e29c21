// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/imu"
	"github.com/relabs-tech/inertial_activity/internal/triaxial"
)

// MPU9250Options selects the wiring of an MPU9250 on SPI plus an HMC5883L
// compatible magnetometer on I2C.
type MPU9250Options struct {
	SPIDevice  string
	CSPin      string
	AccelRange byte // 0=±2g .. 3=±16g
	GyroRange  byte // 0=±250°/s .. 3=±2000°/s
	MagBus     string
	MagAddr    uint16 // 0 disables the magnetometer
}

// MPU9250Source reads raw counts: accel and gyro LSBs, magnetometer µT×10.
type MPU9250Source struct {
	imu *mpu9250.MPU9250
	mag *hmc5883l
	bus i2c.BusCloser
	log *zap.SugaredLogger
}

// NewMPU9250Source initialises the IMU and, when configured, the
// magnetometer. A magnetometer failure is not fatal: the mag channel is then
// missing from every sample.
func NewMPU9250Source(opts MPU9250Options, log *zap.SugaredLogger) (*MPU9250Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(opts.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", opts.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(opts.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", opts.SPIDevice, err)
	}

	dev, err := newIMU(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if err := dev.SetAccelRange(opts.AccelRange); err != nil {
		return nil, fmt.Errorf("IMU: set accel range: %w", err)
	}
	log.Infof("IMU: accelerometer range set to %d (±%dg)", opts.AccelRange, []int{2, 4, 8, 16}[opts.AccelRange&3])

	if err := dev.SetGyroRange(opts.GyroRange); err != nil {
		return nil, fmt.Errorf("IMU: set gyro range: %w", err)
	}
	log.Infof("IMU: gyroscope range set to %d (±%d°/s)", opts.GyroRange, []int{250, 500, 1000, 2000}[opts.GyroRange&3])

	// Self-test
	if res, err := dev.SelfTest(); err != nil {
		log.Warnf("IMU: self-test failed: %v", err)
	} else {
		log.Infof("IMU: self-test passed, accel deviation %+v, gyro deviation %+v", res.AccelDeviation, res.GyroDeviation)
	}

	// Calibration
	if err := dev.Calibrate(); err != nil {
		log.Warnf("IMU: calibration failed: %v", err)
	} else {
		log.Infof("IMU: calibration complete")
	}

	s := &MPU9250Source{imu: dev, log: log}
	if opts.MagAddr == 0 {
		log.Infof("IMU: magnetometer disabled")
		return s, nil
	}

	bus, err := i2creg.Open(opts.MagBus)
	if err != nil {
		log.Warnf("IMU: magnetometer i2c open failed on bus %q (will continue without mag): %v", opts.MagBus, err)
		return s, nil
	}
	mag := &hmc5883l{dev: &i2c.Dev{Bus: bus, Addr: opts.MagAddr}}
	if err := mag.init(); err != nil {
		_ = bus.Close()
		log.Warnf("IMU: magnetometer initialization failed (will continue without mag): %v", err)
		return s, nil
	}
	log.Infof("IMU: magnetometer initialized at 0x%02X", opts.MagAddr)
	s.mag = mag
	s.bus = bus
	return s, nil
}

// newIMU hands the transport to the driver, which keeps it by value.
func newIMU(tr *mpu9250.Transport) (*mpu9250.MPU9250, error) {
	return mpu9250.New(*tr)
}

// Next reads accelerometer, gyroscope and, if available, magnetometer.
func (s *MPU9250Source) Next() (imu.Sample, error) {
	now := time.Now()

	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU accel X: %w", err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU accel Y: %w", err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU accel Z: %w", err)
	}

	gx, err := s.imu.GetRotationX()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU gyro X: %w", err)
	}
	gy, err := s.imu.GetRotationY()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU gyro Y: %w", err)
	}
	gz, err := s.imu.GetRotationZ()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU gyro Z: %w", err)
	}

	sample := imu.Sample{
		Time: now,
		Readings: map[channel.Channel]triaxial.Vec3{
			channel.AccMag: {X: float64(ax), Y: float64(ay), Z: float64(az)},
			channel.GyrMag: {X: float64(gx), Y: float64(gy), Z: float64(gz)},
		},
	}

	if s.mag != nil {
		m, err := s.mag.read()
		if err != nil {
			s.log.Debugf("IMU: magnetometer read error: %v", err)
		} else {
			sample.Readings[channel.MagMag] = m
		}
	}
	return sample, nil
}

// Close releases the magnetometer bus.
func (s *MPU9250Source) Close() error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Close()
}
