// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing and dispatch for routebatch.
package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdRun
	CmdWatch
	CmdRuns
	CmdExport
	CmdConfig
	CmdVersion
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdRun:
		return "run"
	case CmdWatch:
		return "watch"
	case CmdRuns:
		return "runs"
	case CmdExport:
		return "export"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool
	NoColor    bool
	ConfigPath string

	// Raw holds the command's own arguments (global flags removed)
	Raw []string
}

const usageText = `routebatch - run batches of routing requests with bounded concurrency

Usage:
  routebatch run FILE.csv [flags]     Route every request in FILE
  routebatch watch [DIR]              Run a batch for each CSV dropped into DIR
  routebatch runs [list]              List recent runs
  routebatch runs show ID [--geojson] Show a run report (or its GeoJSON)
  routebatch runs delete ID           Delete a run
  routebatch export ID [flags]        Export a stored run
  routebatch config [show|get|set|path]
  routebatch version
  routebatch help

Run flags:
  -c, --concurrency N   Maximum requests in flight
  -p, --profile NAME    Travel profile (driving-car, cycling-regular, foot-walking, ...)
  --rps N               Requests per second sent to the service (0 = unlimited)
  --timeout D           Fail a request that has not settled after D (e.g. 30s)
  --export FORMAT       Export the run when done (csv, geojson, json, md)
  --out DIR             Directory for exported files
  --no-tui              Print plain progress instead of the interactive view

Export flags:
  -f, --format FORMAT   csv, geojson, json or md (default md)
  -o, --out DIR         Output directory (default: current directory)
  --failures            Include failed requests in tabular formats
  --open                Open the file after exporting

Global flags:
  -v, --verbose         Debug logging
  -q, --quiet           Only print errors and results
  --json                Machine-readable output and JSON logs
  --no-color            Disable colored output
  --config PATH         Use a specific config file

CSV input:
  id,start_lon,start_lat,end_lon,end_lat[,label]
  A header row is optional; ';' is accepted as a separator.

Environment:
  ROUTEBATCH_HOME          Config directory (default ~/.routebatch)
  ROUTEBATCH_SERVICE_URL   Routing service base URL
  ROUTEBATCH_API_KEY       Routing service API key
  ROUTEBATCH_PROFILE       Default travel profile
  ROUTEBATCH_CONCURRENCY   Default concurrency
  ROUTEBATCH_DB            Run history database
  NO_COLOR                 Disable colored output

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "routebatch version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s\n", runtime.Version())
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments (without the program name) and
// returns the command and args.
func Parse(argv []string) (Command, Args, error) {
	remaining, parsedArgs, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, parsedArgs, err
	}

	if len(remaining) == 0 {
		return CmdHelp, parsedArgs, nil
	}

	cmd := strings.ToLower(remaining[0])
	parsedArgs.Raw = remaining[1:]

	switch cmd {
	case "run", "r":
		return CmdRun, parsedArgs, nil
	case "watch", "w":
		return CmdWatch, parsedArgs, nil
	case "runs", "history":
		return CmdRuns, parsedArgs, nil
	case "export":
		return CmdExport, parsedArgs, nil
	case "config":
		return CmdConfig, parsedArgs, nil
	case "version", "--version":
		return CmdVersion, parsedArgs, nil
	case "help", "-h", "--help":
		return CmdHelp, parsedArgs, nil
	default:
		return CmdHelp, parsedArgs, NewValidationErrorWithExample("command", cmd,
			"unknown command", "routebatch run routes.csv")
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args, error) {
	var remaining []string
	var parsedArgs Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--no-color":
			parsedArgs.NoColor = true
		case "--config":
			if i+1 >= len(args) {
				return nil, parsedArgs, ErrMissingArgument("--config", "--config PATH")
			}
			i++
			parsedArgs.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "--config=") {
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			} else {
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs, nil
}

// =============================================================================
// DISPATCH
// =============================================================================

// Main executes cmd. Errors are returned for the caller to display.
func Main(ctx context.Context, cmd Command, args Args) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(stdout)
		return nil
	case CmdVersion:
		return HandleVersion(args)
	}

	app, err := NewApp(args)
	if err != nil {
		return err
	}

	switch cmd {
	case CmdRun:
		return app.HandleRun(ctx, args.Raw)
	case CmdWatch:
		return app.HandleWatch(ctx, args.Raw)
	case CmdRuns:
		return app.HandleRuns(ctx, args.Raw)
	case CmdExport:
		return app.HandleExport(ctx, args.Raw)
	case CmdConfig:
		return app.HandleConfig(args.Raw)
	default:
		return fmt.Errorf("unhandled command %s", cmd)
	}
}

// HandleVersion handles the "version" command with JSON output support.
func HandleVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print()
	}
	PrintVersion(stdout)
	return nil
}
