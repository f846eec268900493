// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// watch_cmd.go - The "watch" command: run a batch for every CSV dropped
// into an inbox directory.

package cli

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/jeranaias/routebatch/internal/batch"
	"github.com/jeranaias/routebatch/internal/watch"
)

// HandleWatch handles "routebatch watch [DIR] [--existing] [run flags]".
// Run flags apply to every batch; the interactive view is never used.
func (a *App) HandleWatch(ctx context.Context, raw []string) error {
	p := NewArgParser(raw, "existing", "no-tui")

	dir := p.Positional(0)
	if dir == "" {
		dir = a.cfg.Watch.InboxDir
	}

	opts, err := a.runOptions(p)
	if err != nil {
		return err
	}
	opts.TUI = false

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	handler := func(ctx context.Context, path string) error {
		requests, err := readBatch(path)
		if err != nil {
			return err
		}
		out, err := a.executeBatch(ctx, store, path, requests, opts)
		if err != nil {
			return err
		}
		a.report(out)
		if out.Canceled {
			return batch.ErrCanceled
		}
		return fatalFailure(out.Results)
	}

	w, err := watch.New(watch.Config{
		Dir:             dir,
		Debounce:        a.cfg.Debounce(),
		ProcessExisting: p.BoolFlag("existing"),
		Logger:          a.log,
	}, handler)
	if err != nil {
		return NewCommandError("watch", "start", dir, err)
	}

	abs, _ := filepath.Abs(w.Dir())
	a.note("Watching %s for CSV batches (Ctrl+C to stop)", abs)

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
