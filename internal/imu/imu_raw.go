// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"time"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/triaxial"
)

// ErrNoFreshData is returned by a Source when no new reading arrived since
// the previous call. The sampler treats it as a skipped tick.
var ErrNoFreshData = errors.New("imu: no fresh data")

// Sample is one reading of every tri-axial sensor, in source units.
// A channel missing from Readings is not pushed on that tick.
type Sample struct {
	Time     time.Time
	Readings map[channel.Channel]triaxial.Vec3
}

// Source yields samples. Next must not block for longer than a sample period.
type Source interface {
	Next() (Sample, error)
}

// IMURaw is the JSON wire form of a sample, as published on the IMU topic
// and streamed over serial.
type IMURaw struct {
	Source string    `json:"source"`
	Time   time.Time `json:"time,omitempty"`

	Ax float64 `json:"ax"` // accel
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`

	Gx float64 `json:"gx"` // gyro
	Gy float64 `json:"gy"`
	Gz float64 `json:"gz"`

	Mx float64 `json:"mx"` // magnetometer
	My float64 `json:"my"`
	Mz float64 `json:"mz"`
}

// Sample converts the wire form. A zero Time is replaced by now.
func (r IMURaw) Sample(now time.Time) Sample {
	t := r.Time
	if t.IsZero() {
		t = now
	}
	return Sample{
		Time: t,
		Readings: map[channel.Channel]triaxial.Vec3{
			channel.AccMag: {X: r.Ax, Y: r.Ay, Z: r.Az},
			channel.MagMag: {X: r.Mx, Y: r.My, Z: r.Mz},
			channel.GyrMag: {X: r.Gx, Y: r.Gy, Z: r.Gz},
		},
	}
}

// FromSample builds the wire form of s, tagged with source.
func FromSample(source string, s Sample) IMURaw {
	a := s.Readings[channel.AccMag]
	m := s.Readings[channel.MagMag]
	g := s.Readings[channel.GyrMag]
	return IMURaw{
		Source: source,
		Time:   s.Time,
		Ax:     a.X, Ay: a.Y, Az: a.Z,
		Gx: g.X, Gy: g.Y, Gz: g.Z,
		Mx: m.X, My: m.Y, Mz: m.Z,
	}
}
