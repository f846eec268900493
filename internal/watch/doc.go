// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package watch turns a directory into an inbox for batch files.
//
// CSV files created in (or copied into) the inbox are picked up once writes
// to them have settled, handed to a Handler one at a time, and then moved to
// the inbox's done/ or failed/ subdirectory depending on the outcome.
package watch
