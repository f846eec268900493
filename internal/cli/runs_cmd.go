// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// runs_cmd.go - The "runs" command: inspect run history.

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/routebatch/internal/export"
	"github.com/jeranaias/routebatch/internal/storage"
	"github.com/jeranaias/routebatch/internal/util"
)

// HandleRuns handles "routebatch runs [list|show ID|delete ID]".
func (a *App) HandleRuns(ctx context.Context, raw []string) error {
	p := NewArgParser(raw, "geojson", "all")

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	switch sub := p.Subcommand(); sub {
	case "", "list", "ls":
		limit := p.FlagIntOrDefault("limit", a.cfg.Storage.HistoryLimit)
		return a.listRuns(ctx, store, limit)
	case "show":
		id := p.Positional(1)
		if id == "" {
			return ErrMissingArgument("ID", "routebatch runs show 3f2a9c1b")
		}
		return a.showRun(ctx, store, id, p.BoolFlag("geojson"))
	case "delete", "rm":
		id := p.Positional(1)
		if id == "" {
			return ErrMissingArgument("ID", "routebatch runs delete 3f2a9c1b")
		}
		return a.deleteRun(ctx, store, id)
	default:
		return NewValidationErrorWithExample("subcommand", sub, "unknown runs subcommand",
			"routebatch runs [list|show ID|delete ID]")
	}
}

func (a *App) listRuns(ctx context.Context, store *storage.Store, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	if a.json {
		return NewJSONResponse("runs", RunsData{Runs: runs, Count: len(runs)}).Print()
	}
	if len(runs) == 0 {
		a.say("No runs yet. Start one with: routebatch run FILE.csv")
		return nil
	}

	sourceWidth := max(GetTerminalWidth()-70, 16)
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ShortID(),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			util.TruncateWidth(r.Source, sourceWidth),
			r.Profile,
			string(r.Status),
			a.printer.Sprintf("%d/%d", r.Completed, r.Total),
			a.printer.Sprintf("%d", r.Failed),
			formatElapsed(r.Duration()),
		})
	}
	fmt.Fprintln(stdout, renderTable(a.theme,
		[]string{"ID", "STARTED", "SOURCE", "PROFILE", "STATUS", "SETTLED", "FAILED", "TIME"}, rows))
	return nil
}

func (a *App) showRun(ctx context.Context, store *storage.Store, id string, geojson bool) error {
	run, err := store.LoadRun(ctx, id)
	if err != nil {
		return err
	}

	if a.json && !geojson {
		return NewJSONResponse("runs show", RunData{Run: run, Canceled: run.Status == storage.RunStatusCanceled}).Print()
	}

	opts := export.DefaultOptions()
	opts.Locale = a.cfg.Locale()

	plain := a.theme.NoColor || !a.interactive
	if geojson {
		data, err := export.NewGeoJSONExporter(opts).Export(run)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, highlightJSON(string(data), plain))
		return nil
	}

	data, err := export.NewMarkdownExporter(opts).Export(run)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, renderMarkdown(string(data), GetTerminalWidth(), plain))
	return nil
}

func (a *App) deleteRun(ctx context.Context, store *storage.Store, id string) error {
	if err := store.DeleteRun(ctx, id); err != nil {
		return err
	}
	if a.json {
		return NewJSONResponse("runs delete", map[string]string{"deleted": id}).Print()
	}
	a.say("%s", a.theme.RenderSuccess("Deleted run "+id))
	return nil
}

// formatElapsed renders a run duration compactly ("1m5s", "850ms").
func formatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Hour:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Minute).String()
	}
}
