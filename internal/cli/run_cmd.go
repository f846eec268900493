// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// run_cmd.go - The "run" command: route every request of a CSV batch.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/routebatch/internal/batch"
	"github.com/jeranaias/routebatch/internal/export"
	"github.com/jeranaias/routebatch/internal/routing"
	"github.com/jeranaias/routebatch/internal/storage"
	"github.com/jeranaias/routebatch/internal/tasks"
	"github.com/jeranaias/routebatch/internal/ui/batchview"
)

// runOptions are the per-run settings after flags and config are merged.
type runOptions struct {
	Concurrency  int
	Profile      string
	RPS          float64
	RPSSet       bool
	Timeout      time.Duration
	ExportFormat string
	OutDir       string
	TUI          bool
}

// runOutcome is what one executed batch produced.
type runOutcome struct {
	Run      *storage.Run
	Results  routing.Results
	Canceled bool
	Exported string
}

// HandleRun handles "routebatch run FILE [flags]".
func (a *App) HandleRun(ctx context.Context, raw []string) error {
	p := NewArgParser(raw, "no-tui")
	path := p.Positional(0)
	if path == "" {
		return ErrMissingArgument("FILE", "routebatch run routes.csv --concurrency 8")
	}

	opts, err := a.runOptions(p)
	if err != nil {
		return err
	}

	requests, err := readBatch(path)
	if err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	out, err := a.executeBatch(ctx, store, path, requests, opts)
	if err != nil {
		return err
	}

	a.report(out)
	if out.Canceled {
		return reportedError{batch.ErrCanceled}
	}
	if err := fatalFailure(out.Results); err != nil {
		return reportedError{err}
	}
	return nil
}

// fatalFailure returns the shared cause when no request produced a route
// and every failure is the same service-level problem (bad API key,
// unreachable service or timeouts), so the exit code can report it.
// Per-request failures such as "no route" return nil.
func fatalFailure(res routing.Results) error {
	if len(res.Routes) > 0 || len(res.Failures) == 0 {
		return nil
	}

	var first *routing.ClientError
	for _, f := range res.Failures {
		var clientErr *routing.ClientError
		if !errors.As(f.Err, &clientErr) {
			return nil
		}
		switch clientErr.Type {
		case routing.ErrTypeUnauthorized, routing.ErrTypeConnection, routing.ErrTypeTimeout:
		default:
			return nil
		}
		if first == nil {
			first = clientErr
		} else if clientErr.Type != first.Type {
			return nil
		}
	}
	return first
}

// runOptions merges run flags over the configured defaults.
func (a *App) runOptions(p *ArgParser) (runOptions, error) {
	opts := runOptions{
		Concurrency:  a.cfg.Batch.Concurrency,
		Profile:      a.cfg.Service.Profile,
		Timeout:      a.cfg.TaskTimeout(),
		ExportFormat: strings.ToLower(a.cfg.Batch.ExportFormat),
		OutDir:       a.cfg.Batch.ExportDir,
		TUI:          a.cfg.UI.TUI && a.interactive && !a.json && !a.quiet && !p.BoolFlag("no-tui"),
	}

	if v := p.Flag("concurrency", "c"); v != "" {
		n, err := ParseIntWithValidation(v, "concurrency")
		if err != nil {
			return opts, err
		}
		opts.Concurrency = n
	}

	if v := p.Flag("profile", "p"); v != "" {
		if !routing.ValidProfile(v) {
			return opts, NewValidationErrorWithExample("profile", v, "unknown travel profile",
				"one of "+strings.Join(routing.Profiles, ", "))
		}
		opts.Profile = v
	}

	if v := p.Flag("rps"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps < 0 {
			return opts, NewValidationError("rps", v, "must be a non-negative number")
		}
		opts.RPS, opts.RPSSet = rps, true
	}

	if d, ok, err := p.FlagDuration("timeout"); err != nil {
		return opts, err
	} else if ok {
		if d < 0 {
			return opts, NewValidationError("timeout", p.Flag("timeout"), "must not be negative")
		}
		opts.Timeout = d
	}

	if v := p.Flag("export"); v != "" {
		opts.ExportFormat = strings.ToLower(v)
	}
	if opts.ExportFormat != "" {
		if _, err := export.ByFormat(opts.ExportFormat, nil); err != nil {
			return opts, ErrUnsupportedFormat(opts.ExportFormat, export.Formats())
		}
	}
	if v := p.Flag("out", "o"); v != "" {
		opts.OutDir = v
	}

	return opts, nil
}

// readBatch parses a CSV batch file.
func readBatch(path string) ([]routing.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewCommandError("run", "read", path, err)
	}
	defer f.Close()

	requests, err := routing.ParseBatchCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return requests, nil
}

// =============================================================================
// EXECUTION
// =============================================================================

// executeBatch runs requests under the bounded runner, shows progress,
// persists the outcome and exports it when asked to. Canceling ctx cancels
// the batch; whatever settled before that is still stored.
func (a *App) executeBatch(ctx context.Context, store *storage.Store, source string, requests []routing.Request, opts runOptions) (*runOutcome, error) {
	clientCfg := a.cfg.ClientConfig()
	clientCfg.Profile = opts.Profile
	if opts.RPSSet {
		clientCfg.RequestsPerSecond = opts.RPS
	}
	router := a.newRouter(clientCfg, a.log)

	queue := tasks.NewQueueWithLogger(a.log)
	jobs := routing.NewBatch(router, requests, queue, a.log)

	run := &storage.Run{
		Source:      source,
		Profile:     opts.Profile,
		Total:       len(requests),
		Concurrency: opts.Concurrency,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	a.log.Info("run started", "run", run.ShortID(), "source", source,
		"requests", len(requests), "concurrency", opts.Concurrency)

	// The reducer runs on the runner's coordinator goroutine; partial is
	// only read after Done is closed.
	var partial routing.Results
	collect := routing.Collect(requests)
	reduce := func(acc routing.Results, out batch.Outcome[routing.Route]) routing.Results {
		acc = collect(acc, out)
		partial = acc
		return acc
	}

	g, gctx := errgroup.WithContext(ctx)
	runner, err := batch.New(gctx, jobs, opts.Concurrency, routing.Results{}, reduce,
		func(routing.Results, error) {},
		batch.WithLogger(a.log), batch.WithTaskTimeout(opts.Timeout))
	if err != nil {
		a.recordFailedRun(ctx, store, run, routing.Results{})
		return nil, err
	}

	switch {
	case opts.TUI:
		g.Go(func() error { return a.showProgress(runner, queue, source) })
	case !a.quiet && !a.json:
		g.Go(func() error { a.printProgress(runner); return nil })
	}

	var results routing.Results
	var runErr error
	g.Go(func() error {
		results, runErr = runner.Wait(context.Background())
		return nil
	})

	uiErr := g.Wait()

	out := &runOutcome{Run: run, Results: results}
	if errors.Is(runErr, batch.ErrCanceled) {
		out.Canceled = true
		out.Results = partial
		if n := queue.CancelPending(); n > 0 {
			a.log.Info("requests canceled", "run", run.ShortID(), "count", n)
		}
	} else if runErr != nil {
		a.recordFailedRun(ctx, store, run, partial)
		return nil, runErr
	}

	status := storage.RunStatusComplete
	if out.Canceled {
		status = storage.RunStatusCanceled
	}
	if err := a.finishRun(ctx, store, run, status, out.Results); err != nil {
		return nil, err
	}
	a.log.Info("run finished", "run", run.ShortID(), "status", status,
		"routes", len(out.Results.Routes), "failed", len(out.Results.Failures))
	a.log.Debug("task records", "run", run.ShortID(), "summary", queue.Summary())

	if uiErr != nil {
		return out, fmt.Errorf("progress view: %w", uiErr)
	}

	if opts.ExportFormat != "" && !out.Canceled {
		path, err := a.exportRun(context.WithoutCancel(ctx), store, run.ID, opts.ExportFormat, &export.Options{OutputDir: opts.OutDir, IncludeFailures: true})
		if err != nil {
			return out, err
		}
		out.Exported = path
	}
	return out, nil
}

// finishRun stores res and the final status. It uses a context detached
// from cancellation so an interrupted run is still recorded.
func (a *App) finishRun(ctx context.Context, store *storage.Store, run *storage.Run, status storage.RunStatus, res routing.Results) error {
	ctx = context.WithoutCancel(ctx)
	if err := store.SaveResults(ctx, run.ID, res); err != nil {
		return err
	}
	if err := store.FinishRun(ctx, run.ID, status, res.Total(), len(res.Failures)); err != nil {
		return err
	}
	run.Status = status
	run.Completed = res.Total()
	run.Failed = len(res.Failures)
	run.FinishedAt = time.Now()
	return nil
}

// recordFailedRun marks run failed on the way out of an error path. The
// original error is what the caller reports, so a storage error here is
// only logged.
func (a *App) recordFailedRun(ctx context.Context, store *storage.Store, run *storage.Run, res routing.Results) {
	if err := a.finishRun(ctx, store, run, storage.RunStatusFailed, res); err != nil {
		a.log.Error("failed to record run failure", "run", run.ShortID(), "error", err)
	}
}

// showProgress runs the interactive progress view until the batch ends.
// If the view exits first the batch is canceled.
func (a *App) showProgress(runner batchview.Source, queue *tasks.Queue, source string) error {
	model := batchview.New(runner, queue, batchview.Options{
		Title:   filepath.Base(source),
		NoColor: a.theme.NoColor,
	})
	_, err := tea.NewProgram(model, tea.WithOutput(stdout)).Run()

	select {
	case <-runner.Done():
	default:
		runner.Cancel()
	}
	return err
}

// printProgress writes a progress line to stderr whenever the settled
// count changes, until the batch ends.
func (a *App) printProgress(runner batchview.Source) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := -1
	emit := func() {
		s := runner.Stats()
		if s.Completed == last {
			return
		}
		last = s.Completed
		a.printer.Fprintf(stderr, "[%5.1f%%] %d/%d settled, %d failed, %d in flight\n",
			s.Progress, s.Completed, s.Total, s.Failed, s.Running)
	}

	for {
		select {
		case <-runner.Done():
			emit()
			return
		case <-ticker.C:
			emit()
		}
	}
}

// =============================================================================
// REPORTING
// =============================================================================

// report prints the outcome of a run.
func (a *App) report(out *runOutcome) {
	if a.json {
		NewJSONResponse("run", RunData{Run: out.Run, Exported: out.Exported, Canceled: out.Canceled}).Print()
		return
	}
	if a.quiet {
		if out.Exported != "" {
			fmt.Fprintln(stdout, out.Exported)
		}
		return
	}

	t := a.theme
	res := out.Results
	summary := a.printer.Sprintf("Run %s: %d routes, %d failed, %s total",
		out.Run.ShortID(), len(res.Routes), len(res.Failures),
		export.FormatDistance(a.printer, res.TotalDistance()))

	switch {
	case out.Canceled:
		fmt.Fprintln(stdout, t.RenderWarning(a.printer.Sprintf("Canceled after %d of %d requests. %s",
			res.Total(), out.Run.Total, summary)))
	case len(res.Failures) > 0:
		fmt.Fprintln(stdout, t.RenderWarning(summary))
	default:
		fmt.Fprintln(stdout, t.RenderSuccess(summary))
	}

	for _, f := range res.SortedFailures() {
		detail := t.Muted.Render(f.Err.Error())
		if batch.IsPanic(f.Err) {
			detail = t.Warning.Render("(crashed)") + " " + detail
		}
		fmt.Fprintf(stdout, "  %s %s\n", t.Error.Render(f.Request.DisplayLabel()), detail)
	}
	if out.Exported != "" {
		fmt.Fprintf(stdout, "Exported to %s\n", out.Exported)
	}
}
