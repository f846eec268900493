// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the routebatch command line.
//
// # Commands
//
//   - run: parse a CSV batch, route it with bounded concurrency, store the
//     run and optionally export it
//   - watch: run a batch for every CSV file dropped into an inbox
//   - runs: list, show (glamour report or highlighted GeoJSON) and delete
//     stored runs
//   - export: write a stored run as CSV, GeoJSON, JSON or Markdown
//   - config: show, get, set and locate the configuration
//   - version, help
//
// # Usage
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	if err != nil {
//		cli.DisplayError(os.Stderr, err, false)
//		os.Exit(cli.ExitUsageError)
//	}
//	if err := cli.Main(ctx, cmd, args); err != nil {
//		cli.DisplayError(os.Stderr, err, args.JSON)
//		os.Exit(cli.GetExitCode(err))
//	}
//
// Handlers return errors rather than printing them. Under --json every
// command prints a single JSONResponse envelope on stdout and logs JSON on
// stderr.
package cli
