// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package preprocess

import (
	"fmt"
)

// Params is the per-channel parameter set produced by the offline fitting
// step. Field names follow the exported scaler files.
type Params struct {
	Lambdas []float64 `json:"lambdas" yaml:"lambdas"`
	Scales  []float64 `json:"scales" yaml:"scales"`
	Means   []float64 `json:"means" yaml:"means"`
}

// Chain is an ordered composition of transforms over windows of a fixed length.
type Chain struct {
	length     int
	transforms []Transform
}

// NewChain validates that every positional transform carries exactly length
// parameters. A mismatch is a startup error, never a per-tick one.
func NewChain(length int, transforms ...Transform) (Chain, error) {
	if length <= 0 {
		return Chain{}, fmt.Errorf("%w: chain length must be > 0, got %d", ErrConfig, length)
	}
	if len(transforms) == 0 {
		return Chain{}, fmt.Errorf("%w: chain needs at least one transform", ErrConfig)
	}
	for i, t := range transforms {
		if n := t.Positions(); n != 0 && n != length {
			return Chain{}, fmt.Errorf("%w: transform %d (%v) has %d parameters, window length is %d",
				ErrConfig, i, t.Kind(), n, length)
		}
		if t.Kind() == KindMovingAverage && t.period <= 0 {
			return Chain{}, fmt.Errorf("%w: transform %d is an uninitialised moving average", ErrConfig, i)
		}
	}
	return Chain{length: length, transforms: append([]Transform(nil), transforms...)}, nil
}

// BuildChain assembles the default chain (power transform, then standard
// scaling) from params, followed by a moving average when maPeriod > 0.
func BuildChain(length int, p Params, maPeriod int) (Chain, error) {
	pt, err := PowerTransform(p.Lambdas)
	if err != nil {
		return Chain{}, err
	}
	ss, err := StandardScale(p.Means, p.Scales)
	if err != nil {
		return Chain{}, err
	}
	transforms := []Transform{pt, ss}
	if maPeriod > 0 {
		ma, err := MovingAverage(maPeriod)
		if err != nil {
			return Chain{}, err
		}
		transforms = append(transforms, ma)
	}
	return NewChain(length, transforms...)
}

// Length returns the window length the chain was built for.
func (c Chain) Length() int { return c.length }

// Kinds lists the transform kinds in execution order.
func (c Chain) Kinds() []Kind {
	kinds := make([]Kind, len(c.transforms))
	for i, t := range c.transforms {
		kinds[i] = t.Kind()
	}
	return kinds
}

// Apply runs every transform in order over the whole input.
func (c Chain) Apply(in []float64) ([]float64, error) {
	if len(in) != c.length {
		return nil, fmt.Errorf("preprocess: input has %d values, chain expects %d", len(in), c.length)
	}
	out := in
	for _, t := range c.transforms {
		out = t.Apply(out)
	}
	return out, nil
}
