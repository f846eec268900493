// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/routebatch/internal/routing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResults() routing.Results {
	return routing.Results{
		Routes: []routing.Route{
			{
				Index: 2, RequestID: "c", Label: "third", Profile: "driving-car",
				Distance: 1200, Duration: 90,
				Geometry: []routing.Coordinate{{Lon: 9.9, Lat: 53.5}, {Lon: 10, Lat: 53.6}},
			},
			{Index: 0, RequestID: "a", Label: "first", Profile: "driving-car", Distance: 500, Duration: 40},
		},
		Failures: []routing.Failure{
			{Index: 1, Request: routing.Request{ID: "b", Label: "second"}, Err: errors.New("no route found")},
		},
	}
}

func TestStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	run := &Run{Source: "depots.csv", Profile: "driving-car", Total: 3, Concurrency: 2}
	require.NoError(t, store.CreateRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())

	require.NoError(t, store.SaveResults(ctx, run.ID, sampleResults()))
	require.NoError(t, store.FinishRun(ctx, run.ID, RunStatusComplete, 3, 1))

	loaded, err := store.LoadRun(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, "depots.csv", loaded.Source)
	assert.Equal(t, RunStatusComplete, loaded.Status)
	assert.Equal(t, 3, loaded.Completed)
	assert.Equal(t, 1, loaded.Failed)
	assert.Equal(t, 2, loaded.Concurrency)
	assert.False(t, loaded.FinishedAt.IsZero())

	require.Len(t, loaded.Routes, 3)
	assert.Equal(t, "a", loaded.Routes[0].RequestID)
	assert.Equal(t, "b", loaded.Routes[1].RequestID)
	assert.Equal(t, "c", loaded.Routes[2].RequestID)

	assert.True(t, loaded.Routes[1].Failed())
	assert.Equal(t, "no route found", loaded.Routes[1].Error)
	assert.Equal(t, []routing.Coordinate{{Lon: 9.9, Lat: 53.5}, {Lon: 10, Lat: 53.6}}, loaded.Routes[2].Geometry)
	assert.Len(t, loaded.Succeeded(), 2)
}

func TestStore_LoadByPrefix(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.CreateRun(ctx, &Run{ID: "abc123", Source: "a.csv", Profile: "p", Total: 1, Concurrency: 1}))
	require.NoError(t, store.CreateRun(ctx, &Run{ID: "abd456", Source: "b.csv", Profile: "p", Total: 1, Concurrency: 1}))

	run, err := store.LoadRun(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc123", run.ID)

	_, err = store.LoadRun(ctx, "ab")
	assert.ErrorIs(t, err, ErrAmbiguousID)

	_, err = store.LoadRun(ctx, "zzz")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = store.LoadRun(ctx, "a%")
	assert.ErrorIs(t, err, ErrRunNotFound, "LIKE wildcards are matched literally")

	_, err = store.LoadRun(ctx, "  ")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.CreateRun(ctx, &Run{
			ID: id, Source: id + ".csv", Profile: "p", Total: 1, Concurrency: 1,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
	assert.Nil(t, runs[0].Routes)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_DeleteRunCascades(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	run := &Run{Source: "x.csv", Profile: "p", Total: 3, Concurrency: 1}
	require.NoError(t, store.CreateRun(ctx, run))
	require.NoError(t, store.SaveResults(ctx, run.ID, sampleResults()))

	require.NoError(t, store.DeleteRun(ctx, run.ShortID()))

	_, err := store.LoadRun(ctx, run.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM routes").Scan(&n))
	assert.Zero(t, n)
}

func TestStore_FinishUnknownRun(t *testing.T) {
	store := openTestStore(t)
	err := store.FinishRun(context.Background(), "missing", RunStatusCanceled, 0, 0)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateRun(ctx, &Run{ID: "keep", Source: "k.csv", Profile: "p", Total: 1, Concurrency: 1}))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	run, err := store.LoadRun(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "k.csv", run.Source)
	assert.Equal(t, path, store.Path())
}

func TestRun_Helpers(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &Run{ID: "0123456789abcdef", StartedAt: start, FinishedAt: start.Add(90 * time.Second)}

	assert.Equal(t, "01234567", run.ShortID())
	assert.Equal(t, 90*time.Second, run.Duration())
	assert.Equal(t, "ab", (&Run{ID: "ab"}).ShortID())
}
