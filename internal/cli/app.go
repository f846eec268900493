// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Shared state for command handlers.

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/text/message"

	"github.com/jeranaias/routebatch/internal/config"
	"github.com/jeranaias/routebatch/internal/routing"
	"github.com/jeranaias/routebatch/internal/storage"
	"github.com/jeranaias/routebatch/internal/ui/styles"
)

// Output streams; tests replace them.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// RouterFactory builds the router a batch uses.
type RouterFactory func(cfg *routing.ClientConfig, logger *slog.Logger) routing.Router

func newClientRouter(cfg *routing.ClientConfig, logger *slog.Logger) routing.Router {
	return routing.NewClient(cfg, logger)
}

// App carries configuration and output settings into command handlers.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	theme   *styles.Theme
	printer *message.Printer

	json    bool
	quiet   bool
	verbose bool

	// interactive is true when stdout is a terminal
	interactive bool

	newRouter RouterFactory
}

// NewApp loads configuration (from args.ConfigPath when set) and builds
// the logger, theme and locale printer.
func NewApp(args Args) (*App, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	return newApp(cfg, args), nil
}

func newApp(cfg *config.Config, args Args) *App {
	noColor := args.NoColor || cfg.UI.NoColor || !ColorsEnabled()

	return &App{
		cfg:         cfg,
		log:         NewLogger(stderr, args),
		theme:       styles.NewTheme(noColor),
		printer:     message.NewPrinter(cfg.Locale()),
		json:        args.JSON,
		quiet:       args.Quiet,
		verbose:     args.Verbose,
		interactive: IsStdoutTTY(),
		newRouter:   newClientRouter,
	}
}

// NewLogger returns the command logger: text on w by default, JSON under
// --json. --verbose enables debug output; --quiet keeps only errors.
func NewLogger(w io.Writer, args Args) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case args.Verbose:
		level = slog.LevelDebug
	case args.Quiet:
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if args.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore opens the run history database.
func (a *App) openStore() (*storage.Store, error) {
	store, err := storage.Open(a.cfg.Storage.DBPath)
	if err != nil {
		return nil, NewCommandError("storage", "open", a.cfg.Storage.DBPath, err)
	}
	return store, nil
}

// say prints a human-readable line to stdout unless quiet or in JSON mode.
func (a *App) say(format string, args ...any) {
	if a.quiet || a.json {
		return
	}
	a.printer.Fprintf(stdout, format+"\n", args...)
}

// note prints a human-readable line to stderr unless quiet.
func (a *App) note(format string, args ...any) {
	if a.quiet {
		return
	}
	a.printer.Fprintf(stderr, format+"\n", args...)
}
