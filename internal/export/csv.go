// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/jeranaias/routebatch/internal/storage"
)

// =============================================================================
// CSV EXPORTER
// =============================================================================

// CSVExporter exports one row per request.
type CSVExporter struct {
	options *Options
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(opts *Options) *CSVExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &CSVExporter{options: opts}
}

// Export converts a run to CSV. Distances are in meters and durations in
// seconds so the values stay machine readable.
func (e *CSVExporter) Export(run *storage.Run) ([]byte, error) {
	if run == nil {
		return nil, fmt.Errorf("run is nil")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"index", "id", "label", "profile", "distance_m", "duration_s", "points", "error"})

	for _, r := range run.Routes {
		if r.Failed() && !e.options.IncludeFailures {
			continue
		}
		row := []string{
			strconv.Itoa(r.Index),
			r.RequestID,
			r.Label,
			r.Profile,
			"",
			"",
			"",
			r.Error,
		}
		if !r.Failed() {
			row[4] = strconv.FormatFloat(r.Distance, 'f', 1, 64)
			row[5] = strconv.FormatFloat(r.Duration, 'f', 1, 64)
			row[6] = strconv.Itoa(len(r.Geometry))
		}
		w.Write(row)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for CSV.
func (e *CSVExporter) FileExtension() string {
	return ".csv"
}

// MimeType returns the MIME type for CSV.
func (e *CSVExporter) MimeType() string {
	return "text/csv"
}
