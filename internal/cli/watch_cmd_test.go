// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/routebatch/internal/storage"
	"github.com/jeranaias/routebatch/internal/watch"
)

func TestHandleWatchRunsDroppedBatches(t *testing.T) {
	a, cfg, _ := testApp(t, Args{Quiet: true}, &stubRouter{})
	a.cfg.Watch.DebounceMs = 20
	inbox := filepath.Join(t.TempDir(), "inbox")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.HandleWatch(ctx, []string{inbox, "--existing"}) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(inbox, watch.DoneDir))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "depots.csv"), []byte(testBatch), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "broken.csv"), []byte("a,1,2\n"), 0644))

	assert.Eventually(t, func() bool {
		_, done := os.Stat(filepath.Join(inbox, watch.DoneDir, "depots.csv"))
		_, failed := os.Stat(filepath.Join(inbox, watch.FailedDir, "broken.csv"))
		return done == nil && failed == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	store, err := storage.Open(cfg.Storage.DBPath)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.RunStatusComplete, runs[0].Status)
	assert.Equal(t, 3, runs[0].Completed)
}
