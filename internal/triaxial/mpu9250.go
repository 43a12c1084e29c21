// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package triaxial

import (
	"fmt"
	"math"
)

// Full-scale sensitivities of the MPU9250, indexed by the range code written
// to ACCEL_CONFIG / GYRO_CONFIG (0=±2g, 1=±4g, 2=±8g, 3=±16g and
// 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s).
var (
	accelLSBPerG   = [4]float64{16384, 8192, 4096, 2048}
	gyroLSBPerDegS = [4]float64{131, 65.5, 32.8, 16.4}
)

// MagCountsPerMicroTesla is the fixed-point factor of magnetometer counts
// published by the inertial producers (µT×10 stored as int16).
const MagCountsPerMicroTesla = 10

// AccelCounts returns the convention converting raw accelerometer counts at
// the given range code to m/s².
func AccelCounts(rangeCode byte) (Convention, error) {
	if int(rangeCode) >= len(accelLSBPerG) {
		return Convention{}, fmt.Errorf("accel range code %d out of range 0-3", rangeCode)
	}
	return Uniform(StandardGravity / accelLSBPerG[rangeCode]), nil
}

// GyroCounts returns the convention converting raw gyroscope counts at the
// given range code to rad/s.
func GyroCounts(rangeCode byte) (Convention, error) {
	if int(rangeCode) >= len(gyroLSBPerDegS) {
		return Convention{}, fmt.Errorf("gyro range code %d out of range 0-3", rangeCode)
	}
	return Uniform((math.Pi / 180) / gyroLSBPerDegS[rangeCode]), nil
}

// MagCounts converts µT×10 magnetometer counts to µT.
func MagCounts() Convention {
	return Uniform(1.0 / MagCountsPerMicroTesla)
}
