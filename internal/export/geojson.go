// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/routebatch/internal/routing"
	"github.com/jeranaias/routebatch/internal/storage"
)

// =============================================================================
// GEOJSON EXPORTER
// =============================================================================

// GeoJSONExporter exports a FeatureCollection with one LineString feature
// per computed route. Failed requests have no geometry and are omitted.
type GeoJSONExporter struct {
	options *Options
}

// NewGeoJSONExporter creates a new GeoJSON exporter.
func NewGeoJSONExporter(opts *Options) *GeoJSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &GeoJSONExporter{options: opts}
}

type featureCollection struct {
	Type     string         `json:"type"`
	Features []feature      `json:"features"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   lineString     `json:"geometry"`
}

type lineString struct {
	Type        string               `json:"type"`
	Coordinates []routing.Coordinate `json:"coordinates"`
}

// Export converts a run to GeoJSON.
func (e *GeoJSONExporter) Export(run *storage.Run) ([]byte, error) {
	if run == nil {
		return nil, fmt.Errorf("run is nil")
	}

	fc := featureCollection{
		Type:     "FeatureCollection",
		Features: []feature{},
		Metadata: map[string]any{
			"run_id":  run.ID,
			"source":  run.Source,
			"profile": run.Profile,
			"status":  string(run.Status),
		},
	}

	for _, r := range run.Succeeded() {
		if len(r.Geometry) < 2 {
			continue
		}
		props := map[string]any{
			"index":    r.Index,
			"id":       r.RequestID,
			"profile":  r.Profile,
			"distance": r.Distance,
			"duration": r.Duration,
		}
		if r.Label != "" {
			props["label"] = r.Label
		}
		fc.Features = append(fc.Features, feature{
			Type:       "Feature",
			Properties: props,
			Geometry:   lineString{Type: "LineString", Coordinates: r.Geometry},
		})
	}

	return json.MarshalIndent(fc, "", "  ")
}

// FileExtension returns the file extension for GeoJSON.
func (e *GeoJSONExporter) FileExtension() string {
	return ".geojson"
}

// MimeType returns the MIME type for GeoJSON.
func (e *GeoJSONExporter) MimeType() string {
	return "application/geo+json"
}
