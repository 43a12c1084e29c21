// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package preprocess implements the numeric transforms applied to a full
// window before classification. Parameters are supplied, never fitted here.
package preprocess

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfig marks malformed or degenerate preprocessing parameters.
var ErrConfig = errors.New("preprocess: invalid configuration")

// Kind enumerates the closed set of transforms.
type Kind int

const (
	KindPowerTransform Kind = iota
	KindStandardScale
	KindMovingAverage
)

func (k Kind) String() string {
	switch k {
	case KindPowerTransform:
		return "power_transform"
	case KindStandardScale:
		return "standard_scale"
	case KindMovingAverage:
		return "moving_average"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Transform is one immutable, stateless step of a chain. The zero value is
// not usable; build transforms with PowerTransform, StandardScale or
// MovingAverage.
type Transform struct {
	kind    Kind
	lambdas []float64
	means   []float64
	scales  []float64
	period  int
}

// PowerTransform returns a Yeo-Johnson transform with one exponent per
// sequence position.
func PowerTransform(lambdas []float64) (Transform, error) {
	if len(lambdas) == 0 {
		return Transform{}, fmt.Errorf("%w: power transform needs at least one lambda", ErrConfig)
	}
	for i, l := range lambdas {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return Transform{}, fmt.Errorf("%w: lambda[%d] is not finite", ErrConfig, i)
		}
	}
	return Transform{kind: KindPowerTransform, lambdas: clone(lambdas)}, nil
}

// StandardScale returns a per-position (x - mean) / scale transform. A zero or
// non-finite scale is rejected here so it cannot poison every later tick.
func StandardScale(means, scales []float64) (Transform, error) {
	if len(means) == 0 {
		return Transform{}, fmt.Errorf("%w: standard scaler needs at least one mean", ErrConfig)
	}
	if len(means) != len(scales) {
		return Transform{}, fmt.Errorf("%w: %d means but %d scales", ErrConfig, len(means), len(scales))
	}
	for i := range means {
		if math.IsNaN(means[i]) || math.IsInf(means[i], 0) {
			return Transform{}, fmt.Errorf("%w: mean[%d] is not finite", ErrConfig, i)
		}
		if scales[i] == 0 || math.IsNaN(scales[i]) || math.IsInf(scales[i], 0) {
			return Transform{}, fmt.Errorf("%w: scale[%d] = %v", ErrConfig, i, scales[i])
		}
	}
	return Transform{kind: KindStandardScale, means: clone(means), scales: clone(scales)}, nil
}

// MovingAverage returns a trailing mean over at most period preceding values.
func MovingAverage(period int) (Transform, error) {
	if period <= 0 {
		return Transform{}, fmt.Errorf("%w: moving average period must be > 0, got %d", ErrConfig, period)
	}
	return Transform{kind: KindMovingAverage, period: period}, nil
}

// Kind returns the transform kind.
func (t Transform) Kind() Kind { return t.kind }

// Positions returns the number of per-position parameters, or 0 when the
// transform accepts any input length.
func (t Transform) Positions() int {
	switch t.kind {
	case KindPowerTransform:
		return len(t.lambdas)
	case KindStandardScale:
		return len(t.means)
	default:
		return 0
	}
}

// Apply returns the transformed copy of in. Callers guarantee that len(in)
// matches Positions when it is non-zero; Chain enforces this.
func (t Transform) Apply(in []float64) []float64 {
	switch t.kind {
	case KindPowerTransform:
		return yeoJohnson(in, t.lambdas)
	case KindStandardScale:
		return standardScale(in, t.means, t.scales)
	case KindMovingAverage:
		return movingAverage(in, t.period)
	default:
		panic(fmt.Sprintf("preprocess: apply on %v", t.kind))
	}
}

// yeoJohnson transforms every position, position 0 included. Only the moving
// average passes its first position through.
func yeoJohnson(in, lambdas []float64) []float64 {
	out := make([]float64, len(in))
	for i, x := range in {
		l := lambdas[i]
		switch {
		case l != 0 && x >= 0:
			out[i] = (math.Pow(x+1, l) - 1) / l
		case l == 0 && x >= 0:
			out[i] = math.Log(x + 1)
		case l != 2 && x < 0:
			out[i] = -(math.Pow(-x+1, 2-l) - 1) / (2 - l)
		default: // l == 2, x < 0
			out[i] = -math.Log(-x + 1)
		}
	}
	return out
}

func standardScale(in, means, scales []float64) []float64 {
	out := make([]float64, len(in))
	for i, x := range in {
		out[i] = (x - means[i]) / scales[i]
	}
	return out
}

// movingAverage re-sums the trailing range for every index instead of
// keeping a running sum, so results match a left-to-right reference sum.
// The divisor is the number of values actually summed, min(i, period), not
// period: the first period-1 outputs are true means rather than scaled down.
func movingAverage(in []float64, period int) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		if i == 0 {
			out[i] = in[i]
			continue
		}
		lo := max(0, i-period)
		var sum float64
		for _, v := range in[lo:i] {
			sum += v
		}
		out[i] = sum / float64(i-lo)
	}
	return out
}

func clone(s []float64) []float64 {
	return append([]float64(nil), s...)
}
