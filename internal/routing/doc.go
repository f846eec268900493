// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package routing holds the routing domain: batch requests parsed from CSV,
// the HTTP client for an openrouteservice-style directions API, and the glue
// that turns a list of requests into runner tasks and collects the results.
//
// # Input format
//
// One request per row, semicolon or comma separated:
//
//	id;start_lon;start_lat;end_lon;end_lat;label
//
// The label column is optional, a header row is allowed, and blank lines and
// lines starting with '#' are ignored.
//
// # Usage
//
//	reqs, err := routing.ParseBatchCSV(f)
//	client := routing.NewClient(routing.DefaultConfig(), logger)
//	queue := tasks.NewQueue()
//	r, err := batch.New(ctx, routing.NewBatch(client, reqs, queue, logger), 4,
//	    routing.Results{}, routing.Collect(reqs), onDone)
package routing
