// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package preprocess

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-5

func TestPowerTransformBranches(t *testing.T) {
	tests := []struct {
		name   string
		lambda float64
		x      float64
		want   float64
	}{
		{"positive-lambda-positive-x", 0.5, 3, 2},
		{"zero-lambda-positive-x", 0, math.E - 1, 1},
		{"zero-lambda-zero-x", 0, 0, 0},
		{"lambda-one-negative-x", 1, -1, -1},
		{"lambda-three-negative-x", 3, -1, -0.5},
		{"lambda-two-negative-x", 2, -(math.E - 1), -1},
		{"lambda-two-positive-x", 2, 1, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt, err := PowerTransform([]float64{tt.lambda})
			require.NoError(t, err)
			got := pt.Apply([]float64{tt.x})
			assert.InDelta(t, tt.want, got[0], 1e-12)
		})
	}
}

// The exponent at position 0 is applied like any other position.
func TestPowerTransformTransformsFirstPosition(t *testing.T) {
	pt, err := PowerTransform([]float64{0.5, 0.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, pt.Apply([]float64{3, 3}))
}

func TestStandardScale(t *testing.T) {
	ss, err := StandardScale([]float64{1, 2}, []float64{2, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, ss.Apply([]float64{3, 10}))
}

func TestStandardScaleRoundTrip(t *testing.T) {
	means := []float64{0.5, -3, 12.25, 0}
	scales := []float64{2, 0.1, 7.5, -1.5}
	in := []float64{1.75, -2.5, 100, 3.3}

	ss, err := StandardScale(means, scales)
	require.NoError(t, err)
	scaled := ss.Apply(in)
	for i := range in {
		assert.InDelta(t, in[i], scaled[i]*scales[i]+means[i], tolerance)
	}
}

func TestStandardScaleRejectsDegenerateScale(t *testing.T) {
	for _, bad := range []float64{0, math.NaN(), math.Inf(1)} {
		_, err := StandardScale([]float64{0, 0}, []float64{1, bad})
		require.ErrorIs(t, err, ErrConfig)
	}
	_, err := StandardScale([]float64{0, 0}, []float64{1})
	require.ErrorIs(t, err, ErrConfig)
	_, err = StandardScale(nil, nil)
	require.ErrorIs(t, err, ErrConfig)
}

func TestPowerTransformRejectsNonFinite(t *testing.T) {
	_, err := PowerTransform([]float64{1, math.NaN()})
	require.ErrorIs(t, err, ErrConfig)
	_, err = PowerTransform(nil)
	require.ErrorIs(t, err, ErrConfig)
}

func TestMovingAverage(t *testing.T) {
	ma, err := MovingAverage(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1.5, 2.5, 3.5}, ma.Apply([]float64{1, 2, 3, 4, 5}))

	wide, err := MovingAverage(10)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 4, 5, 6}, wide.Apply([]float64{4, 6, 8, 10}))

	// partial windows divide by the values summed, not by the period
	three, err := MovingAverage(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 4.5, 6, 9}, three.Apply([]float64{3, 6, 9, 12, 15}))

	_, err = MovingAverage(0)
	require.ErrorIs(t, err, ErrConfig)
}

func TestNewChainLengthMismatch(t *testing.T) {
	pt, err := PowerTransform([]float64{1, 1, 1})
	require.NoError(t, err)
	_, err = NewChain(4, pt)
	require.ErrorIs(t, err, ErrConfig)

	_, err = NewChain(3)
	require.ErrorIs(t, err, ErrConfig)

	_, err = NewChain(3, Transform{kind: KindMovingAverage})
	require.ErrorIs(t, err, ErrConfig)
}

func TestChainAppliesInOrder(t *testing.T) {
	ss, err := StandardScale([]float64{1, 1, 1}, []float64{2, 2, 2})
	require.NoError(t, err)
	ma, err := MovingAverage(1)
	require.NoError(t, err)

	c, err := NewChain(3, ss, ma)
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindStandardScale, KindMovingAverage}, c.Kinds())

	in := []float64{3, 5, 7}
	got, err := c.Apply(in)
	require.NoError(t, err)
	// scale: [1 2 3], then shift by one position with pass-through at 0.
	assert.Equal(t, []float64{1, 1, 2}, got)
	assert.Equal(t, []float64{3, 5, 7}, in, "input must not be mutated")

	_, err = c.Apply([]float64{1, 2})
	require.Error(t, err)
}

type fixtureChannel struct {
	Params   Params    `json:"params"`
	Raw      []float64 `json:"raw"`
	Expected []float64 `json:"expected"`
}

func loadFixture(t *testing.T) map[string]fixtureChannel {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "reference_fixture.json"))
	require.NoError(t, err)
	var fx map[string]fixtureChannel
	require.NoError(t, json.Unmarshal(data, &fx))
	require.NotEmpty(t, fx)
	return fx
}

func TestChainMatchesReferenceFixture(t *testing.T) {
	for name, ch := range loadFixture(t) {
		t.Run(name, func(t *testing.T) {
			c, err := BuildChain(len(ch.Raw), ch.Params, 0)
			require.NoError(t, err)

			first, err := c.Apply(ch.Raw)
			require.NoError(t, err)
			require.Len(t, first, len(ch.Expected))
			for i := range ch.Expected {
				assert.InDelta(t, ch.Expected[i], first[i], tolerance, "position %d", i)
			}

			// Re-running on the same raw window reproduces the same output.
			second, err := c.Apply(ch.Raw)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestBuildChainWithMovingAverage(t *testing.T) {
	p := Params{Lambdas: []float64{1, 1}, Scales: []float64{1, 1}, Means: []float64{0, 0}}
	c, err := BuildChain(2, p, 3)
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindPowerTransform, KindStandardScale, KindMovingAverage}, c.Kinds())

	_, err = BuildChain(3, p, 0)
	require.ErrorIs(t, err, ErrConfig)
}
