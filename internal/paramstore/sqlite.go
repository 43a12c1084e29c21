// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package paramstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/preprocess"
)

const schema = `
CREATE TABLE IF NOT EXISTS channel_params (
    channel     TEXT PRIMARY KEY,
    lambdas     TEXT NOT NULL,
    scales      TEXT NOT NULL,
    means       TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
`

// SQLStore keeps parameters in a SQLite table, one row per channel.
type SQLStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s, err := NewSQLStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore creates the table on db if needed.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("paramstore schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the parameters of c.
func (s *SQLStore) Save(ctx context.Context, c channel.Channel, p preprocess.Params) error {
	lambdas, err := json.Marshal(p.Lambdas)
	if err != nil {
		return err
	}
	scales, err := json.Marshal(p.Scales)
	if err != nil {
		return err
	}
	means, err := json.Marshal(p.Means)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO channel_params (channel, lambdas, scales, means, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(channel) DO UPDATE SET
		   lambdas = excluded.lambdas,
		   scales = excluded.scales,
		   means = excluded.means,
		   updated_at = excluded.updated_at`,
		c.String(), string(lambdas), string(scales), string(means),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", c, err)
	}
	return nil
}

// Load returns the parameters of c.
func (s *SQLStore) Load(ctx context.Context, c channel.Channel) (preprocess.Params, error) {
	var lambdas, scales, means string
	err := s.db.QueryRowContext(ctx,
		`SELECT lambdas, scales, means FROM channel_params WHERE channel = ?`, c.String(),
	).Scan(&lambdas, &scales, &means)
	if errors.Is(err, sql.ErrNoRows) {
		return preprocess.Params{}, fmt.Errorf("%w: channel %s", ErrNotFound, c)
	}
	if err != nil {
		return preprocess.Params{}, fmt.Errorf("load %s: %w", c, err)
	}

	var p preprocess.Params
	if err := json.Unmarshal([]byte(lambdas), &p.Lambdas); err != nil {
		return preprocess.Params{}, fmt.Errorf("decode %s lambdas: %w", c, err)
	}
	if err := json.Unmarshal([]byte(scales), &p.Scales); err != nil {
		return preprocess.Params{}, fmt.Errorf("decode %s scales: %w", c, err)
	}
	if err := json.Unmarshal([]byte(means), &p.Means); err != nil {
		return preprocess.Params{}, fmt.Errorf("decode %s means: %w", c, err)
	}
	return p, nil
}
