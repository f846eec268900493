// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/routebatch/internal/routing"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrRunNotFound = errors.New("run not found")
	ErrAmbiguousID = errors.New("run id prefix is ambiguous")
)

// =============================================================================
// TYPES
// =============================================================================

// RunStatus is the final (or current) state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusCanceled RunStatus = "canceled"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one executed batch.
type Run struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Profile     string    `json:"profile"`
	Status      RunStatus `json:"status"`
	Total       int       `json:"total"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	Concurrency int       `json:"concurrency"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`

	// Routes is only populated by LoadRun.
	Routes []RouteRecord `json:"routes,omitempty"`
}

// Duration returns how long the run took, or has taken so far.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ShortID returns the first eight characters of the ID.
func (r *Run) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[:8]
	}
	return r.ID
}

// Succeeded returns the routes that were computed.
func (r *Run) Succeeded() []RouteRecord {
	out := make([]RouteRecord, 0, len(r.Routes))
	for _, rr := range r.Routes {
		if !rr.Failed() {
			out = append(out, rr)
		}
	}
	return out
}

// RouteRecord is a stored route or failure.
type RouteRecord struct {
	Index     int                  `json:"index"`
	RequestID string               `json:"request_id"`
	Label     string               `json:"label,omitempty"`
	Profile   string               `json:"profile,omitempty"`
	Distance  float64              `json:"distance"`
	Duration  float64              `json:"duration"`
	Geometry  []routing.Coordinate `json:"geometry,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Failed reports whether the request did not produce a route.
func (r RouteRecord) Failed() bool {
	return r.Error != ""
}

// =============================================================================
// STORE
// =============================================================================

// Store is the run history database.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns ~/.routebatch/routebatch.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".routebatch", "routebatch.db")
	}
	return filepath.Join(home, ".routebatch", "routebatch.db")
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}

	// Create database directory if needed
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// WRITES
// =============================================================================

// CreateRun inserts run with status running. A missing ID or start time is
// filled in.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = RunStatusRunning

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, profile, status, total, completed, failed, concurrency, started_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		run.ID, run.Source, run.Profile, string(run.Status), run.Total, run.Concurrency,
		run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the final status and counts of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, completed, failed int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, completed = ?, failed = ?, finished_at = ?
		WHERE id = ?`,
		string(status), completed, failed, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// SaveResults stores every route and failure of res under runID.
func (s *Store) SaveResults(ctx context.Context, runID string, res routing.Results) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO routes (run_id, idx, request_id, label, profile, distance, duration, geometry, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, route := range res.Routes {
		geom, err := json.Marshal(route.Geometry)
		if err != nil {
			return fmt.Errorf("failed to encode geometry of %s: %w", route.RequestID, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, route.Index, route.RequestID, route.Label,
			route.Profile, route.Distance, route.Duration, string(geom), nil); err != nil {
			return fmt.Errorf("failed to save route %s: %w", route.RequestID, err)
		}
	}
	for _, f := range res.Failures {
		if _, err := stmt.ExecContext(ctx, runID, f.Index, f.Request.ID, f.Request.Label,
			f.Request.Profile, nil, nil, nil, f.Err.Error()); err != nil {
			return fmt.Errorf("failed to save failure %s: %w", f.Request.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteRun removes a run and its routes.
func (s *Store) DeleteRun(ctx context.Context, idOrPrefix string) error {
	id, err := s.resolveID(ctx, idOrPrefix)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

const runColumns = `id, source, profile, status, total, completed, failed, concurrency, started_at, finished_at`

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// LoadRun returns the run with the given ID or unique ID prefix, including
// its routes in submission order.
func (s *Store) LoadRun(ctx context.Context, idOrPrefix string) (*Run, error) {
	id, err := s.resolveID(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, request_id, label, profile, distance, duration, geometry, error
		FROM routes WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rr                 RouteRecord
			label, profile     sql.NullString
			geometry, errText  sql.NullString
			distance, duration sql.NullFloat64
		)
		if err := rows.Scan(&rr.Index, &rr.RequestID, &label, &profile,
			&distance, &duration, &geometry, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		rr.Label = label.String
		rr.Profile = profile.String
		rr.Distance = distance.Float64
		rr.Duration = duration.Float64
		rr.Error = errText.String
		if geometry.Valid && geometry.String != "" {
			if err := json.Unmarshal([]byte(geometry.String), &rr.Geometry); err != nil {
				return nil, fmt.Errorf("failed to decode geometry of %s: %w", rr.RequestID, err)
			}
		}
		run.Routes = append(run.Routes, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return run, nil
}

// resolveID expands a unique prefix to a full run ID.
func (s *Store) resolveID(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrRunNotFound)
	}

	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escaped+"%")
	if err != nil {
		return "", fmt.Errorf("failed to look up run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run      Run
		status   string
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(&run.ID, &run.Source, &run.Profile, &status, &run.Total,
		&run.Completed, &run.Failed, &run.Concurrency, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = RunStatus(status)
	run.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		run.FinishedAt = time.UnixMilli(finished.Int64)
	}
	return &run, nil
}
