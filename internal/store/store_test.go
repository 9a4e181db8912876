// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package store_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/eyemat"
	"github.com/OpenPSG/eyemat/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*store.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.db")
	db, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	db, _ := openStore(t)

	startedAt := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	require.NoError(t, db.CreateSession(ctx, "s1", "session.mat", startedAt))

	require.NoError(t, db.InsertEvents(ctx, "s1", 0, []eyemat.Event{
		eyemat.Message{Timestamp: 100, Text: "Start Trial 11"},
		eyemat.Sample{Timestamp: 100, GazeX: 1.5, GazeY: -2, Kind: eyemat.SampleType},
	}))
	require.NoError(t, db.InsertEvents(ctx, "s1", 2, []eyemat.Event{
		eyemat.Sample{Timestamp: 101, GazeX: float32(math.NaN()), GazeY: float32(math.NaN()), Kind: eyemat.SampleStartFix},
		eyemat.Sample{Timestamp: 102, GazeX: 3, GazeY: 4, Kind: eyemat.SampleEndFix},
	}))

	rows, err := db.Events(ctx, "s1")
	require.NoError(t, err)

	want := []store.Row{
		{Seq: 0, Kind: "MESSAGEEVENT", Timestamp: 100, GazeX: math.NaN(), GazeY: math.NaN(), Message: "Start Trial 11"},
		{Seq: 1, Kind: "SAMPLE_TYPE", Timestamp: 100, GazeX: 1.5, GazeY: -2},
		{Seq: 2, Kind: "SAMPLESTARTFIX", Timestamp: 101, GazeX: math.NaN(), GazeY: math.NaN()},
		{Seq: 3, Kind: "SAMPLEENDFIX", Timestamp: 102, GazeX: 3, GazeY: 4},
	}
	if diff := cmp.Diff(want, rows, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("unexpected events (-want +got):\n%s", diff)
	}

	summary, err := db.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "session.mat", summary.Recording)
	assert.True(t, startedAt.Equal(summary.StartedAt))
	assert.Equal(t, map[string]int{
		"MESSAGEEVENT":   1,
		"SAMPLE_TYPE":    1,
		"SAMPLESTARTFIX": 1,
		"SAMPLEENDFIX":   1,
	}, summary.Counts)
	assert.Equal(t, eyemat.Interval{Start: 100, End: 102}, summary.Span)
}

func TestStoreReopen(t *testing.T) {
	ctx := context.Background()
	db, path := openStore(t)

	require.NoError(t, db.CreateSession(ctx, "s1", "a.mat", time.Now()))
	require.NoError(t, db.Close())

	reopened, err := store.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	summary, err := reopened.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a.mat", summary.Recording)
	assert.Empty(t, summary.Counts)
}

func TestStoreSessionIDs(t *testing.T) {
	ctx := context.Background()
	db, _ := openStore(t)

	ids, err := db.SessionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.CreateSession(ctx, "b", "b.mat", base.Add(time.Hour)))
	require.NoError(t, db.CreateSession(ctx, "a", "a.mat", base.Add(2*time.Hour)))
	require.NoError(t, db.CreateSession(ctx, "c", "c.mat", base))

	ids, err = db.SessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	db, _ := openStore(t)

	t.Run("Unknown session", func(t *testing.T) {
		_, err := db.Summary(ctx, "missing")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("Duplicate session", func(t *testing.T) {
		require.NoError(t, db.CreateSession(ctx, "dup", "a.mat", time.Now()))
		require.Error(t, db.CreateSession(ctx, "dup", "b.mat", time.Now()))
	})

	t.Run("Events without a session", func(t *testing.T) {
		err := db.InsertEvents(ctx, "orphan", 0, []eyemat.Event{eyemat.Message{Timestamp: 1}})
		require.Error(t, err)

		rows, err := db.Events(ctx, "orphan")
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Failed batch is rolled back", func(t *testing.T) {
		require.NoError(t, db.CreateSession(ctx, "seq", "a.mat", time.Now()))
		require.NoError(t, db.InsertEvents(ctx, "seq", 2, []eyemat.Event{eyemat.Message{Timestamp: 3}}))

		// Sequence 1 is new, sequence 2 already exists.
		err := db.InsertEvents(ctx, "seq", 1, []eyemat.Event{
			eyemat.Message{Timestamp: 1},
			eyemat.Message{Timestamp: 2},
		})
		require.ErrorContains(t, err, "failed to insert event 2")

		rows, err := db.Events(ctx, "seq")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 2, rows[0].Seq)
	})
}
