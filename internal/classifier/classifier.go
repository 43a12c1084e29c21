// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package classifier is the boundary to the activity model. The model itself
// runs elsewhere; this package defines the contract, the closed label and
// accelerator sets, and a gRPC transport to a remote inference service.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrErroneousInputShape is returned when a matrix does not have the
	// (timesteps x channels) shape the model expects.
	ErrErroneousInputShape = errors.New("classifier: erroneous input shape")
	// ErrAcceleratorUnavailable is returned at load time when the requested
	// hardware accelerator cannot be obtained. It is never substituted.
	ErrAcceleratorUnavailable = errors.New("classifier: accelerator unavailable")
	// ErrModelNotFound is returned at load time for an unknown model name.
	ErrModelNotFound = errors.New("classifier: model not found")
	// ErrInvalidScores is returned when a model answers with a confidence
	// outside [0,1], such as raw logits.
	ErrInvalidScores = errors.New("classifier: confidence outside [0,1]")
)

// Classifier turns a feature matrix into ranked predictions.
type Classifier interface {
	Classify(ctx context.Context, features *mat.Dense) ([]Prediction, error)
}

// Loader builds classifiers for a model on an accelerator.
type Loader interface {
	Load(ctx context.Context, model string, accelerator Accelerator) (Classifier, error)
}

// Prediction is one label with its confidence in [0,1].
type Prediction struct {
	Label      Class   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Accelerator selects the hardware the model runs on.
type Accelerator string

const (
	CPU Accelerator = "CPU"
	GPU Accelerator = "GPU"
	ANE Accelerator = "ANE"
)

// Accelerators lists every accelerator.
var Accelerators = []Accelerator{CPU, GPU, ANE}

// Description is the long name of the accelerator.
func (a Accelerator) Description() string {
	switch a {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	case ANE:
		return "Apple Neural Engine"
	default:
		return string(a)
	}
}

// ParseAccelerator accepts the accelerator name in any case.
func ParseAccelerator(s string) (Accelerator, error) {
	for _, a := range Accelerators {
		if strings.EqualFold(s, string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown accelerator %q (want CPU, GPU or ANE)", s)
}

// Class is the closed set of activity labels, in model output order.
type Class int

const (
	Null Class = iota
	Still
	Walking
	Run
	Bike
	Car
	Bus
	Train
	Subway
)

// Classes lists every class in model output order.
var Classes = []Class{Null, Still, Walking, Run, Bike, Car, Bus, Train, Subway}

var classNames = [...]string{"Null", "Still", "Walking", "Run", "Bike", "Car", "Bus", "Train", "Subway"}

func (c Class) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return fmt.Sprintf("Class(%d)", int(c))
	}
	return classNames[c]
}

// ParseClass returns the class for its String form.
func ParseClass(s string) (Class, error) {
	for i, name := range classNames {
		if strings.EqualFold(s, name) {
			return Class(i), nil
		}
	}
	return 0, fmt.Errorf("unknown class %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(classNames) {
		return nil, fmt.Errorf("invalid class %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Class) UnmarshalText(b []byte) error {
	parsed, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Rank pairs raw model scores with their classes and sorts them by
// descending confidence. Ties keep model output order. Every score must be a
// confidence in [0,1]; anything else fails with ErrInvalidScores.
func Rank(scores []float64) ([]Prediction, error) {
	if len(scores) != len(Classes) {
		return nil, fmt.Errorf("classifier: model returned %d scores, want %d", len(scores), len(Classes))
	}
	preds := make([]Prediction, len(scores))
	for i, s := range scores {
		if math.IsNaN(s) || s < 0 || s > 1 {
			return nil, fmt.Errorf("%w: %s = %v", ErrInvalidScores, Classes[i], s)
		}
		preds[i] = Prediction{Label: Classes[i], Confidence: s}
	}
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Confidence > preds[j].Confidence
	})
	return preds, nil
}

// CheckShape verifies that m is rows x cols.
func CheckShape(m mat.Matrix, rows, cols int) error {
	if m == nil {
		return fmt.Errorf("%w: nil matrix", ErrErroneousInputShape)
	}
	r, c := m.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrErroneousInputShape, r, c, rows, cols)
	}
	return nil
}
