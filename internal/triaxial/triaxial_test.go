// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package triaxial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name string
		v    Vec3
		c    Convention
		want float64
	}{
		{"identity-unit-x", Vec3{1, 0, 0}, Identity, 1},
		{"identity-345", Vec3{3, 4, 0}, Identity, 5},
		{"gravity-rest", Vec3{0, 0, -1}, GravityToSI, StandardGravity},
		{"gravity-diagonal", Vec3{1, 1, 1}, GravityToSI, StandardGravity * math.Sqrt(3)},
		{"sign-flip-keeps-norm", Vec3{1, 2, 2}, Identity.WithSigns(-1, 1, -1), 3},
		{"zero", Vec3{}, GravityToSI, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Reduce(tt.v, tt.c), 1e-12)
		})
	}
}

func TestConventionApply(t *testing.T) {
	c := Uniform(2).WithSigns(1, -1, 1)
	got := c.Apply(Vec3{1, 2, 3})
	assert.Equal(t, Vec3{2, -4, 6}, got)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Vec3{1, -2, 3}))
	assert.False(t, Valid(Vec3{math.NaN(), 0, 0}))
	assert.False(t, Valid(Vec3{0, math.Inf(1), 0}))
	assert.False(t, Valid(Vec3{0, 0, math.Inf(-1)}))
}

func TestCountConventions(t *testing.T) {
	acc, err := AccelCounts(0)
	require.NoError(t, err)
	// 16384 counts on one axis is exactly 1 g at ±2g.
	assert.InDelta(t, StandardGravity, Reduce(Vec3{0, 0, 16384}, acc), 1e-9)

	gyr, err := GyroCounts(0)
	require.NoError(t, err)
	// 131 counts is 1 °/s at ±250°/s.
	assert.InDelta(t, math.Pi/180, Reduce(Vec3{131, 0, 0}, gyr), 1e-12)

	assert.InDelta(t, 50.0, Reduce(Vec3{300, 400, 0}, MagCounts()), 1e-12)

	_, err = AccelCounts(4)
	assert.Error(t, err)
	_, err = GyroCounts(9)
	assert.Error(t, err)
}
