// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package journal

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_activity/internal/classifier"
	"github.com/relabs-tech/inertial_activity/internal/gnss"
	"github.com/relabs-tech/inertial_activity/internal/pipeline"
)

func tempJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	j, err := New(db)
	require.NoError(t, err)
	return j
}

func report(at time.Time, label classifier.Class) pipeline.Report {
	return pipeline.Report{
		ID:          uuid.New(),
		At:          at,
		Model:       "activity",
		Accelerator: classifier.CPU,
		Predictions: []classifier.Prediction{
			{Label: label, Confidence: 0.9},
			{Label: classifier.Null, Confidence: 0.1},
		},
	}
}

func TestPublishAndRecent(t *testing.T) {
	ctx := context.Background()
	j := tempJournal(t)
	assert.Equal(t, "journal", j.Name())

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	first := report(base, classifier.Walking)
	second := report(base.Add(500*time.Millisecond), classifier.Run)
	second.Fix = &gnss.Fix{Latitude: 47.5, Longitude: 8.7, Validity: "A"}
	third := report(base.Add(time.Second), classifier.Run)

	for _, r := range []pipeline.Report{first, second, third} {
		require.NoError(t, j.Publish(ctx, r))
	}

	got, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, third.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
	assert.True(t, second.At.Equal(got[1].At))
	assert.Equal(t, second.Predictions, got[1].Predictions)
	require.NotNil(t, got[1].Fix)
	assert.InDelta(t, 47.5, got[1].Fix.Latitude, 1e-12)
	assert.Nil(t, got[0].Fix)

	counts, err := j.CountByLabel(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, map[classifier.Class]int{classifier.Walking: 1, classifier.Run: 2}, counts)

	counts, err = j.CountByLabel(ctx, base.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, map[classifier.Class]int{classifier.Run: 1}, counts)
}

func TestPublishDuplicateID(t *testing.T) {
	ctx := context.Background()
	j := tempJournal(t)
	r := report(time.Now(), classifier.Still)
	require.NoError(t, j.Publish(ctx, r))
	require.Error(t, j.Publish(ctx, r))
}
