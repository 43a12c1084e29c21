// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"

	"github.com/relabs-tech/inertial_activity/internal/triaxial"
)

// HMC5883L / HMC5983 register map.
const (
	hmcRegConfigA = 0x00
	hmcRegConfigB = 0x01
	hmcRegMode    = 0x02
	hmcRegDataX   = 0x03 // X, Z, Y big-endian pairs follow
	hmcRegIDA     = 0x0A

	hmcConfigA75Hz8Avg = 0x78
	hmcConfigBGain1090 = 0x20
	hmcModeContinuous  = 0x00

	hmcLSBPerGauss    = 1090.0
	hmcOverflow       = -4096
	microTeslaPerGaus = 100.0
)

var errMagOverflow = errors.New("magnetometer overflow")

type hmc5883l struct {
	dev conn.Conn
}

func (h *hmc5883l) init() error {
	id := make([]byte, 3)
	if err := h.dev.Tx([]byte{hmcRegIDA}, id); err != nil {
		return fmt.Errorf("read ID: %w", err)
	}
	if string(id) != "H43" {
		return fmt.Errorf("unexpected ID %q", id)
	}
	for _, w := range [][]byte{
		{hmcRegConfigA, hmcConfigA75Hz8Avg},
		{hmcRegConfigB, hmcConfigBGain1090},
		{hmcRegMode, hmcModeContinuous},
	} {
		if err := h.dev.Tx(w, nil); err != nil {
			return fmt.Errorf("write reg 0x%02X: %w", w[0], err)
		}
	}
	return nil
}

// read returns the field in µT×10, the fixed-point convention of the raw
// count units.
func (h *hmc5883l) read() (triaxial.Vec3, error) {
	var buf [6]byte
	if err := h.dev.Tx([]byte{hmcRegDataX}, buf[:]); err != nil {
		return triaxial.Vec3{}, err
	}
	return decodeHMC(buf)
}

func decodeHMC(buf [6]byte) (triaxial.Vec3, error) {
	x := int16(uint16(buf[0])<<8 | uint16(buf[1]))
	z := int16(uint16(buf[2])<<8 | uint16(buf[3]))
	y := int16(uint16(buf[4])<<8 | uint16(buf[5]))
	if x == hmcOverflow || y == hmcOverflow || z == hmcOverflow {
		return triaxial.Vec3{}, errMagOverflow
	}
	k := microTeslaPerGaus * triaxial.MagCountsPerMicroTesla / hmcLSBPerGauss
	return triaxial.Vec3{X: float64(x) * k, Y: float64(y) * k, Z: float64(z) * k}, nil
}
