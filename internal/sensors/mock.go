// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/imu"
	"github.com/relabs-tech/inertial_activity/internal/triaxial"
)

// MockSource generates a smooth gait-like signal in SI units, for running
// the pipeline without hardware.
type MockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a mock source that starts its signal now.
func NewMockSource() *MockSource {
	return &MockSource{start: time.Now(), now: time.Now}
}

// Next never fails and never reports stale data.
func (m *MockSource) Next() (imu.Sample, error) {
	now := m.now()
	t := now.Sub(m.start).Seconds()
	step := 2 * math.Pi * 1.8 * t // ~1.8 steps per second

	return imu.Sample{
		Time: now,
		Readings: map[channel.Channel]triaxial.Vec3{
			channel.AccMag: {
				X: 0.8 * math.Sin(step),
				Y: 0.4 * math.Cos(step*0.5),
				Z: triaxial.StandardGravity + 2.5*math.Sin(step),
			},
			channel.MagMag: {
				X: 22 + 3*math.Sin(t*0.3),
				Y: -4 + 2*math.Cos(t*0.3),
				Z: 41,
			},
			channel.GyrMag: {
				X: 0.6 * math.Sin(step),
				Y: 0.3 * math.Cos(step),
				Z: 0.1 * math.Sin(t),
			},
		},
	}, nil
}
