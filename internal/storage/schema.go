// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1
)

// Schema is the SQLite schema for run history.
const Schema = `
-- Metadata table for schema version
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- One row per batch run
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,          -- input file the batch came from
    profile TEXT NOT NULL,
    status TEXT NOT NULL,          -- running, complete, canceled, failed
    total INTEGER NOT NULL,
    completed INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    concurrency INTEGER NOT NULL,
    started_at INTEGER NOT NULL,   -- Unix milliseconds
    finished_at INTEGER            -- Unix milliseconds, NULL while running
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

-- One row per settled request; failed requests carry an error and no geometry
CREATE TABLE IF NOT EXISTS routes (
    run_id TEXT NOT NULL,
    idx INTEGER NOT NULL,          -- position in the input batch
    request_id TEXT NOT NULL,
    label TEXT,
    profile TEXT,
    distance REAL,                 -- meters
    duration REAL,                 -- seconds
    geometry TEXT,                 -- JSON array of [lon, lat]
    error TEXT,
    PRIMARY KEY (run_id, idx),
    FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

// InitMetadata seeds the metadata table.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
`
