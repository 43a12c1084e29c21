// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package channel defines the logical sensor channels and the registry that
// binds each of them to its window, preprocessing chain and unit convention.
package channel

import (
	"fmt"
	"strings"
)

// Channel identifies one scalar sensor stream. Its ordinal is the column of
// the channel in the feature matrix.
type Channel int

const (
	// AccMag is the magnitude of acceleration including gravity, in m/s².
	AccMag Channel = iota
	// MagMag is the magnitude of the calibrated magnetic field, in µT.
	MagMag
	// GyrMag is the magnitude of angular rate, in rad/s.
	GyrMag
)

// Order lists every channel in column order.
var Order = []Channel{AccMag, MagMag, GyrMag}

// Count is the number of channels (feature matrix columns).
const Count = 3

func (c Channel) String() string {
	switch c {
	case AccMag:
		return "acc_mag"
	case MagMag:
		return "mag_mag"
	case GyrMag:
		return "gyr_mag"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Description is a human-readable name for logs and the web API.
func (c Channel) Description() string {
	switch c {
	case AccMag:
		return "Acceleration Magnitude"
	case MagMag:
		return "Magnetometer Magnitude"
	case GyrMag:
		return "Gyrosensor Magnitude"
	default:
		return c.String()
	}
}

// ParamsName is the base name of the channel's preprocessing parameter file.
func (c Channel) ParamsName() string {
	return c.String() + ".scaler"
}

// Parse returns the channel for its String form.
func Parse(s string) (Channel, error) {
	for _, c := range Order {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
