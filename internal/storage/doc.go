// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists batch runs and their routes in SQLite.
//
// The database lives at ~/.routebatch/routebatch.db by default and uses the
// pure Go modernc.org/sqlite driver, so no cgo toolchain is needed.
//
// Runs are addressed by UUID. Anywhere an ID is accepted, a unique prefix of
// it works as well:
//
//	store, err := storage.Open(storage.DefaultPath())
//	run, err := store.LoadRun(ctx, "3f2a")
package storage
