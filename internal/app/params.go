// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/paramstore"
)

// ImportParams copies the parameter files in dir into the SQLite store at
// dbPath, replacing what it held for each channel.
func ImportParams(ctx context.Context, dir, dbPath string, log *zap.SugaredLogger) error {
	params, err := paramstore.LoadAll(ctx, paramstore.NewFileStore(dir))
	if err != nil {
		return fmt.Errorf("params import: %w", err)
	}

	db, err := paramstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, c := range channel.Order {
		if err := db.Save(ctx, c, params[c]); err != nil {
			return fmt.Errorf("params import: %w", err)
		}
		log.Infow("params: imported", "channel", c.String(), "positions", len(params[c].Lambdas), "db", dbPath)
	}
	return nil
}
