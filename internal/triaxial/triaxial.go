// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package triaxial reduces three-axis sensor vectors to scalar magnitudes.
package triaxial

import (
	"fmt"
	"math"
)

// StandardGravity is the g to m/s² factor used by the reference data set.
const StandardGravity = 9.81

// Vec3 is one three-axis reading in the unit and sign convention of its source.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Convention maps a source convention onto the target one. Each axis is
// multiplied by its scale before the magnitude is taken, so a negative scale
// flips the axis and a common factor rescales the unit.
type Convention struct {
	Scale Vec3 `json:"scale"`
}

// Identity leaves readings untouched.
var Identity = Uniform(1)

// GravityToSI converts accelerations reported in g to m/s².
var GravityToSI = Uniform(StandardGravity)

// Uniform returns a convention applying the same factor to every axis.
func Uniform(f float64) Convention {
	return Convention{Scale: Vec3{X: f, Y: f, Z: f}}
}

// WithSigns returns c with the given per-axis signs applied (+1 or -1).
func (c Convention) WithSigns(sx, sy, sz float64) Convention {
	return Convention{Scale: Vec3{
		X: c.Scale.X * sx,
		Y: c.Scale.Y * sy,
		Z: c.Scale.Z * sz,
	}}
}

// Apply returns v with the convention's per-axis correction applied.
func (c Convention) Apply(v Vec3) Vec3 {
	return Vec3{
		X: v.X * c.Scale.X,
		Y: v.Y * c.Scale.Y,
		Z: v.Z * c.Scale.Z,
	}
}

// Magnitude returns the Euclidean norm of v.
func (v Vec3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// String implements fmt.Stringer.
func (v Vec3) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", v.X, v.Y, v.Z)
}

// Reduce corrects v into the target convention and returns its magnitude.
func Reduce(v Vec3, c Convention) float64 {
	return c.Apply(v).Magnitude()
}

// Valid reports whether every axis of v is a finite number.
func Valid(v Vec3) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
