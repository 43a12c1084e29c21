// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package journal records published prediction reports in SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/inertial_activity/internal/classifier"
	"github.com/relabs-tech/inertial_activity/internal/gnss"
	"github.com/relabs-tech/inertial_activity/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
    id           TEXT PRIMARY KEY,
    at           TEXT NOT NULL,
    model        TEXT NOT NULL,
    accelerator  TEXT NOT NULL,
    top_label    TEXT NOT NULL,
    confidence   REAL NOT NULL,
    predictions  TEXT NOT NULL,
    fix          TEXT
);
CREATE INDEX IF NOT EXISTS idx_reports_at ON reports(at);
`

// timeLayout has a fixed width so that stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Journal appends every report it observes.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	j, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// New creates the schema on db if needed.
func New(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Name implements pipeline.Observer.
func (j *Journal) Name() string { return "journal" }

// Publish implements pipeline.Observer.
func (j *Journal) Publish(ctx context.Context, r pipeline.Report) error {
	top, _ := r.Top()
	preds, err := json.Marshal(r.Predictions)
	if err != nil {
		return fmt.Errorf("journal: encode predictions: %w", err)
	}
	var fix sql.NullString
	if r.Fix != nil {
		b, err := json.Marshal(r.Fix)
		if err != nil {
			return fmt.Errorf("journal: encode fix: %w", err)
		}
		fix = sql.NullString{String: string(b), Valid: true}
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO reports (id, at, model, accelerator, top_label, confidence, predictions, fix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.At.UTC().Format(timeLayout), r.Model, string(r.Accelerator),
		top.Label.String(), top.Confidence, string(preds), fix,
	)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]pipeline.Report, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at, model, accelerator, predictions, fix
		 FROM reports ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Report
	for rows.Next() {
		var (
			id, at, model, acc, preds string
			fix                       sql.NullString
		)
		if err := rows.Scan(&id, &at, &model, &acc, &preds, &fix); err != nil {
			return nil, err
		}
		r := pipeline.Report{Model: model, Accelerator: classifier.Accelerator(acc)}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("journal: bad id %q: %w", id, err)
		}
		if r.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("journal: bad time %q: %w", at, err)
		}
		if err := json.Unmarshal([]byte(preds), &r.Predictions); err != nil {
			return nil, fmt.Errorf("journal: decode predictions of %s: %w", id, err)
		}
		if fix.Valid {
			r.Fix = new(gnss.Fix)
			if err := json.Unmarshal([]byte(fix.String), r.Fix); err != nil {
				return nil, fmt.Errorf("journal: decode fix of %s: %w", id, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByLabel returns how many reports had each top label since t.
func (j *Journal) CountByLabel(ctx context.Context, since time.Time) (map[classifier.Class]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT top_label, COUNT(*) FROM reports WHERE at >= ? GROUP BY top_label`,
		since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	out := map[classifier.Class]int{}
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		c, err := classifier.ParseClass(label)
		if err != nil {
			continue
		}
		out[c] = n
	}
	return out, rows.Err()
}
