// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - The "export" command: write a stored run to a file.

package cli

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"github.com/jeranaias/routebatch/internal/export"
	"github.com/jeranaias/routebatch/internal/storage"
)

// HandleExport handles "routebatch export ID [--format F] [--out DIR] [--open] [--failures]".
func (a *App) HandleExport(ctx context.Context, raw []string) error {
	p := NewArgParser(raw, "open", "failures")
	id := p.Positional(0)
	if id == "" {
		return ErrMissingArgument("ID", "routebatch export 3f2a9c1b --format geojson")
	}

	format := p.Flag("format", "f")
	if format == "" {
		format = a.cfg.Batch.ExportFormat
	}
	if format == "" {
		format = "md"
	}

	opts := &export.Options{
		OutputDir:       p.FlagOrDefault("out", a.cfg.Batch.ExportDir),
		OpenAfterExport: p.BoolFlag("open"),
		IncludeFailures: p.BoolFlag("failures"),
	}
	if v := p.Flag("o"); v != "" {
		opts.OutputDir = v
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	path, err := a.exportRun(ctx, store, id, format, opts)
	if err != nil {
		return err
	}

	if a.json {
		return NewJSONResponse("export", ExportData{RunID: id, Format: format, Path: path}).Print()
	}
	if a.quiet {
		fmt.Fprintln(stdout, path)
		return nil
	}
	fmt.Fprintln(stdout, a.theme.RenderSuccess("Exported to "+path))
	return nil
}

// exportRun loads run id (or a unique prefix) and writes it in format.
func (a *App) exportRun(ctx context.Context, store *storage.Store, id, format string, opts *export.Options) (string, error) {
	if opts.Locale == language.Und {
		opts.Locale = a.cfg.Locale()
	}
	exporter, err := export.ByFormat(format, opts)
	if err != nil {
		return "", ErrUnsupportedFormat(format, export.Formats())
	}

	run, err := store.LoadRun(ctx, id)
	if err != nil {
		return "", err
	}

	path, err := export.ExportToFile(run, exporter, opts)
	if err != nil {
		return "", NewCommandError("export", format, run.ShortID(), err)
	}
	a.log.Info("run exported", "run", run.ShortID(), "format", format, "path", path)
	return path, nil
}
