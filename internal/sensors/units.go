// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/triaxial"
)

// Units names the convention a source reports readings in.
type Units string

const (
	// UnitsCounts is raw MPU9250 output: accel and gyro LSBs, mag in µT×10.
	UnitsCounts Units = "counts"
	// UnitsG is acceleration in g, angular rate in rad/s, field in µT.
	UnitsG Units = "g"
	// UnitsSI is acceleration in m/s², angular rate in rad/s, field in µT.
	UnitsSI Units = "si"
)

// ParseUnits validates a SOURCE_UNITS value.
func ParseUnits(s string) (Units, error) {
	switch u := Units(s); u {
	case UnitsCounts, UnitsG, UnitsSI:
		return u, nil
	default:
		return "", fmt.Errorf("unknown source units %q (want counts, g or si)", s)
	}
}

// Conventions returns the per-channel conversion into m/s², µT and rad/s for
// readings in units. The ranges are MPU9250 full-scale codes and only matter
// for raw counts.
func Conventions(units Units, accelRange, gyroRange byte) (map[channel.Channel]triaxial.Convention, error) {
	switch units {
	case UnitsCounts:
		acc, err := triaxial.AccelCounts(accelRange)
		if err != nil {
			return nil, err
		}
		gyr, err := triaxial.GyroCounts(gyroRange)
		if err != nil {
			return nil, err
		}
		return map[channel.Channel]triaxial.Convention{
			channel.AccMag: acc,
			channel.MagMag: triaxial.MagCounts(),
			channel.GyrMag: gyr,
		}, nil
	case UnitsG:
		return map[channel.Channel]triaxial.Convention{
			channel.AccMag: triaxial.GravityToSI,
			channel.MagMag: triaxial.Identity,
			channel.GyrMag: triaxial.Identity,
		}, nil
	case UnitsSI:
		return map[channel.Channel]triaxial.Convention{
			channel.AccMag: triaxial.Identity,
			channel.MagMag: triaxial.Identity,
			channel.GyrMag: triaxial.Identity,
		}, nil
	default:
		return nil, fmt.Errorf("unknown source units %q", units)
	}
}
