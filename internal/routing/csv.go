// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package routing

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Parse errors.
var (
	ErrEmptyBatch       = errors.New("batch contains no requests")
	ErrInvalidRow       = errors.New("invalid row")
	ErrCoordinateRange  = errors.New("coordinate out of range")
	ErrDuplicateRequest = errors.New("duplicate request id")
)

// ParseError reports a problem with one input row.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseBatchCSV reads routing requests from r.
//
// The delimiter is taken from the first data line: ';' if it contains one,
// ',' otherwise. A first row whose coordinate columns are all non-numeric
// is treated as a header.
func ParseBatchCSV(r io.Reader) ([]Request, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		requests []Request
		seen     = make(map[string]int)
		first    = true
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &ParseError{Line: perr.Line, Err: perr.Err}
			}
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}

		req, err := parseRecord(record)
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		if prev, dup := seen[req.ID]; dup {
			return nil, &ParseError{
				Line: line,
				Err:  fmt.Errorf("%w %q (first seen on line %d)", ErrDuplicateRequest, req.ID, prev),
			}
		}
		seen[req.ID] = line
		requests = append(requests, req)
	}

	if len(requests) == 0 {
		return nil, ErrEmptyBatch
	}
	return requests, nil
}

func sniffDelimiter(data []byte) rune {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, ";") {
			return ';'
		}
		return ','
	}
	return ';'
}

// isHeader reports whether record is a column header row: none of its
// coordinate columns is a number. A data row with a single bad coordinate
// is not a header and fails to parse.
func isHeader(record []string) bool {
	if len(record) < 5 {
		return false
	}
	for _, field := range record[1:5] {
		if _, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err == nil {
			return false
		}
	}
	return true
}

func parseRecord(record []string) (Request, error) {
	if len(record) < 5 || len(record) > 6 {
		return Request{}, fmt.Errorf("%w: expected 5 or 6 fields, got %d", ErrInvalidRow, len(record))
	}

	id := strings.TrimSpace(record[0])
	if id == "" {
		return Request{}, fmt.Errorf("%w: empty id", ErrInvalidRow)
	}

	var vals [4]float64
	names := [4]string{"start_lon", "start_lat", "end_lon", "end_lat"}
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %s %q is not a number", ErrInvalidRow, names[i], record[i+1])
		}
		vals[i] = v
	}

	req := Request{
		ID:          id,
		Origin:      Coordinate{Lon: vals[0], Lat: vals[1]},
		Destination: Coordinate{Lon: vals[2], Lat: vals[3]},
	}
	if len(record) == 6 {
		req.Label = strings.TrimSpace(record[5])
	}

	if !req.Origin.Valid() {
		return Request{}, fmt.Errorf("%w: origin %s", ErrCoordinateRange, req.Origin)
	}
	if !req.Destination.Valid() {
		return Request{}, fmt.Errorf("%w: destination %s", ErrCoordinateRange, req.Destination)
	}
	return req, nil
}
