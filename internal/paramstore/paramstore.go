// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package paramstore loads the per-channel preprocessing parameters exported
// by the offline fitting step.
package paramstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/preprocess"
)

// ErrNotFound is returned when a channel has no stored parameters.
var ErrNotFound = errors.New("paramstore: parameters not found")

// Store provides parameters per channel.
type Store interface {
	Load(ctx context.Context, c channel.Channel) (preprocess.Params, error)
}

// LoadAll loads every channel in channel.Order. Any missing channel is an error.
func LoadAll(ctx context.Context, s Store) (map[channel.Channel]preprocess.Params, error) {
	out := make(map[channel.Channel]preprocess.Params, channel.Count)
	for _, c := range channel.Order {
		p, err := s.Load(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", c, err)
		}
		out[c] = p
	}
	return out, nil
}
