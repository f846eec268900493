// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes stored runs to files.
//
// # Supported Formats
//
//   - csv: one row per request, spreadsheet friendly
//   - geojson: FeatureCollection of route LineStrings for GIS tools
//   - json: the complete run record
//   - md: human-readable Markdown report
//
// # Usage
//
//	exporter, err := export.ByFormat("geojson", nil)
//	path, err := export.ExportToFile(run, exporter, &export.Options{OutputDir: "out"})
package export
