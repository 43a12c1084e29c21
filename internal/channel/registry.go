// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package channel

import (
	"fmt"

	"github.com/relabs-tech/inertial_activity/internal/preprocess"
	"github.com/relabs-tech/inertial_activity/internal/triaxial"
	"github.com/relabs-tech/inertial_activity/internal/window"
)

// Binding ties one channel to the state it owns.
type Binding struct {
	Channel    Channel
	Window     *window.Window
	Chain      preprocess.Chain
	Convention triaxial.Convention
}

// Registry is the fixed, ordered set of channel bindings. It is built once at
// startup and never changes afterwards.
type Registry struct {
	length   int
	bindings []Binding
}

// Spec is the per-channel input to NewRegistry.
type Spec struct {
	Chain      preprocess.Chain
	Convention triaxial.Convention
}

// NewRegistry builds a registry with one window of the given length per
// channel in Order. Every channel must have a spec whose chain was built for
// the same length.
func NewRegistry(length int, specs map[Channel]Spec) (*Registry, error) {
	r := &Registry{length: length}
	for _, c := range Order {
		spec, ok := specs[c]
		if !ok {
			return nil, fmt.Errorf("channel %s: no preprocessing configured", c)
		}
		if spec.Chain.Length() != length {
			return nil, fmt.Errorf("channel %s: chain built for %d positions, window length is %d",
				c, spec.Chain.Length(), length)
		}
		w, err := window.New(length)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", c, err)
		}
		r.bindings = append(r.bindings, Binding{
			Channel:    c,
			Window:     w,
			Chain:      spec.Chain,
			Convention: spec.Convention,
		})
	}
	return r, nil
}

// Length returns the window length L shared by every channel.
func (r *Registry) Length() int { return r.length }

// Bindings returns the bindings in column order. The slice must not be modified.
func (r *Registry) Bindings() []Binding { return r.bindings }

// Lookup returns the binding for c.
func (r *Registry) Lookup(c Channel) (Binding, bool) {
	for _, b := range r.bindings {
		if b.Channel == c {
			return b, true
		}
	}
	return Binding{}, false
}
