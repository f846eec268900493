// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchCSV_Semicolon(t *testing.T) {
	input := `# depots to customers
id;start_lon;start_lat;end_lon;end_lat;label
a1;9.9937;53.5511;13.4050;52.5200;Hamburg -> Berlin

a2;8.6821;50.1109;11.5820;48.1351
`
	reqs, err := ParseBatchCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, "a1", reqs[0].ID)
	assert.Equal(t, "Hamburg -> Berlin", reqs[0].Label)
	assert.Equal(t, Coordinate{Lon: 9.9937, Lat: 53.5511}, reqs[0].Origin)
	assert.Equal(t, Coordinate{Lon: 13.4050, Lat: 52.5200}, reqs[0].Destination)

	assert.Equal(t, "a2", reqs[1].ID)
	assert.Empty(t, reqs[1].Label)
	assert.Equal(t, "a2", reqs[1].DisplayLabel())
}

func TestParseBatchCSV_Comma(t *testing.T) {
	input := "1, 9.99, 53.55, 13.40, 52.52\n2, 8.68, 50.11, 11.58, 48.13, Frankfurt\n"

	reqs, err := ParseBatchCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "Frankfurt", reqs[1].Label)
	assert.Equal(t, 48.13, reqs[1].Destination.Lat)
}

func TestParseBatchCSV_HeaderRow(t *testing.T) {
	input := "id,start_lon,start_lat,end_lon,end_lat\nk1,10.13,54.32,7.10,50.73\n"

	reqs, err := ParseBatchCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "k1", reqs[0].ID)

	// One numeric coordinate means the row is data, not a header.
	_, err = ParseBatchCSV(strings.NewReader("id,start_lon,54.32,end_lon,end_lat\nk1,10.13,54.32,7.10,50.73\n"))
	require.ErrorIs(t, err, ErrInvalidRow)
}

func TestParseBatchCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
		line  int
	}{
		{"empty", "# nothing here\n\n", ErrEmptyBatch, 0},
		{"header only", "id;a;b;c;d\n", ErrEmptyBatch, 0},
		{"too few fields", "a;1;2;3\n", ErrInvalidRow, 1},
		{"not a number", "a;1;2;3;4\nb;1;x;3;4\n", ErrInvalidRow, 2},
		{"empty id", ";1;2;3;4\n", ErrInvalidRow, 1},
		{"longitude range", "a;181;2;3;4\n", ErrCoordinateRange, 1},
		{"latitude range", "a;1;2;3;-91\n", ErrCoordinateRange, 1},
		{"duplicate", "a;1;2;3;4\na;1;2;3;4\n", ErrDuplicateRequest, 2},
		{"bad first row start_lon", "a;x;52.52;13.06;52.39\nb;1;2;3;4\n", ErrInvalidRow, 1},
		{"bad first row end_lat", "a,13.38,52.52,13.06,oops\n", ErrInvalidRow, 1},
		{"short header-like row", "id;lon\n", ErrInvalidRow, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBatchCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			if tt.line > 0 {
				var perr *ParseError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tt.line, perr.Line)
			}
		})
	}
}

func TestCoordinate_JSON(t *testing.T) {
	data, err := Coordinate{Lon: 9.5, Lat: 53.25}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[9.5, 53.25]`, string(data))

	var c Coordinate
	require.NoError(t, c.UnmarshalJSON([]byte(`[1, 2, 300]`)))
	assert.Equal(t, Coordinate{Lon: 1, Lat: 2}, c)

	assert.Error(t, c.UnmarshalJSON([]byte(`[1]`)))
}

func TestValidProfile(t *testing.T) {
	assert.True(t, ValidProfile("driving-car"))
	assert.True(t, ValidProfile("foot-walking"))
	assert.False(t, ValidProfile("teleport"))
}
