// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"encoding/json"
	"fmt"
	"slices"
)

// =============================================================================
// PROFILES
// =============================================================================

// DefaultProfile is used when neither the request nor the client names one.
const DefaultProfile = "driving-car"

// Profiles lists the travel profiles understood by the directions service.
var Profiles = []string{
	"driving-car",
	"driving-hgv",
	"cycling-regular",
	"cycling-road",
	"cycling-mountain",
	"cycling-electric",
	"foot-walking",
	"foot-hiking",
	"wheelchair",
}

// ValidProfile reports whether p is a known travel profile.
func ValidProfile(p string) bool {
	return slices.Contains(Profiles, p)
}

// =============================================================================
// COORDINATES
// =============================================================================

// Coordinate is a WGS84 position. It encodes to JSON as [lon, lat], the
// GeoJSON position order.
type Coordinate struct {
	Lon float64
	Lat float64
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Lon >= -180 && c.Lon <= 180 && c.Lat >= -90 && c.Lat <= 90
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lon, c.Lat)
}

// MarshalJSON implements json.Marshaler.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lon, c.Lat})
}

// UnmarshalJSON implements json.Unmarshaler. Positions with an altitude
// component are accepted and the altitude is dropped.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var pos []float64
	if err := json.Unmarshal(data, &pos); err != nil {
		return err
	}
	if len(pos) < 2 {
		return fmt.Errorf("position needs at least 2 values, got %d", len(pos))
	}
	c.Lon, c.Lat = pos[0], pos[1]
	return nil
}

// =============================================================================
// REQUESTS AND ROUTES
// =============================================================================

// Request is one origin/destination pair to route.
type Request struct {
	ID          string     `json:"id"`
	Label       string     `json:"label,omitempty"`
	Origin      Coordinate `json:"origin"`
	Destination Coordinate `json:"destination"`
	Profile     string     `json:"profile,omitempty"`
}

// DisplayLabel returns the label, falling back to the ID.
func (r Request) DisplayLabel() string {
	if r.Label != "" {
		return r.Label
	}
	return r.ID
}

// Route is a computed route.
type Route struct {
	// Index is the position of the originating request in its batch.
	Index     int          `json:"index"`
	RequestID string       `json:"request_id"`
	Label     string       `json:"label,omitempty"`
	Profile   string       `json:"profile"`
	Distance  float64      `json:"distance"` // meters
	Duration  float64      `json:"duration"` // seconds
	Geometry  []Coordinate `json:"geometry,omitempty"`
}
