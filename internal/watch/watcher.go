// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// Subdirectories processed files are moved to.
const (
	DoneDir   = "done"
	FailedDir = "failed"
)

// Handler processes one inbox file. A non-nil error moves the file to
// failed/ instead of done/.
type Handler func(ctx context.Context, path string) error

// Config configures a Watcher.
type Config struct {
	// Dir is the inbox directory; it is created if missing
	Dir string

	// Debounce is how long a file must go without writes before it is handled
	Debounce time.Duration

	// ProcessExisting queues CSV files already in Dir when Run starts
	ProcessExisting bool

	Logger *slog.Logger
}

// =============================================================================
// WATCHER
// =============================================================================

// Watcher watches an inbox directory with fsnotify.
type Watcher struct {
	dir      string
	debounce time.Duration
	existing bool
	handler  Handler
	log      *slog.Logger

	watcher *fsnotify.Watcher
	jobs    chan string

	mu      sync.Mutex
	pending map[string]time.Time // File path -> last change time
	queued  map[string]bool
}

// New creates a watcher for cfg.Dir, creating the inbox and its done/ and
// failed/ subdirectories.
func New(cfg Config, handler Handler) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: nil handler")
	}
	if cfg.Dir == "" {
		return nil, errors.New("watch: no inbox directory")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	for _, dir := range []string{cfg.Dir, filepath.Join(cfg.Dir, DoneDir), filepath.Join(cfg.Dir, FailedDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(cfg.Dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.Dir, err)
	}

	return &Watcher{
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		existing: cfg.ProcessExisting,
		handler:  handler,
		log:      cfg.Logger,
		watcher:  fw,
		jobs:     make(chan string, 64),
		pending:  make(map[string]time.Time),
		queued:   make(map[string]bool),
	}, nil
}

// Dir returns the inbox directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run processes inbox files until ctx is done. Files are handled one at a
// time in the order they settle. Run closes the underlying watcher before
// returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if w.existing {
		if err := w.queueExisting(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.processEvents(ctx) })
	g.Go(func() error { w.processPending(ctx); return nil })
	g.Go(func() error { w.work(ctx); return nil })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// queueExisting marks CSV files already present as pending.
func (w *Watcher) queueExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// Backdate so the first pending pass picks them up.
	stamp := time.Now().Add(-w.debounce)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if e.Type().IsRegular() && IsBatchFile(e.Name()) {
			w.pending[filepath.Join(w.dir, e.Name())] = stamp
		}
	}
	return nil
}

// processEvents processes file system events
func (w *Watcher) processEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !IsBatchFile(event.Name) {
				continue
			}

			switch {
			case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
				w.mu.Lock()
				w.pending[event.Name] = time.Now()
				w.mu.Unlock()
			case event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove):
				w.mu.Lock()
				delete(w.pending, event.Name)
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

// processPending moves files whose writes have settled to the work queue.
func (w *Watcher) processPending(ctx context.Context) {
	interval := min(max(w.debounce/4, 10*time.Millisecond), 100*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()

			w.mu.Lock()
			var ready []string
			for path, changeTime := range w.pending {
				if now.Sub(changeTime) >= w.debounce && !w.queued[path] {
					ready = append(ready, path)
					delete(w.pending, path)
					w.queued[path] = true
				}
			}
			w.mu.Unlock()

			sort.Strings(ready)
			for _, path := range ready {
				select {
				case w.jobs <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// work runs the handler for each settled file.
func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.jobs:
			w.handle(ctx, path)
			w.mu.Lock()
			delete(w.queued, path)
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return
	}

	w.log.Info("processing batch file", "file", filepath.Base(path))
	err := w.handler(ctx, path)

	// A file interrupted by shutdown stays in the inbox for the next run.
	if ctx.Err() != nil {
		return
	}

	dest := DoneDir
	if err != nil {
		dest = FailedDir
		w.log.Error("batch file failed", "file", filepath.Base(path), "error", err)
	}

	moved, mvErr := moveInto(path, filepath.Join(w.dir, dest))
	if mvErr != nil {
		w.log.Error("failed to move batch file", "file", path, "error", mvErr)
		return
	}
	w.log.Debug("moved batch file", "to", moved)
}

// moveInto renames path into dir, adding a timestamp when the name is taken.
func moveInto(path, dir string) (string, error) {
	name := filepath.Base(path)
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(name)
		target = filepath.Join(dir, fmt.Sprintf("%s_%s%s",
			strings.TrimSuffix(name, ext), time.Now().Format("20060102_150405.000"), ext))
	}
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// IsBatchFile reports whether name looks like a batch input file. Hidden
// files, which include the temp files of atomic writers, are ignored.
func IsBatchFile(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(filepath.Ext(base), ".csv")
}
