// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package batchview provides the Bubble Tea progress view shown while a
// batch runs.
//
// The model polls its Source on a tick rather than receiving pushes, so the
// runner never blocks on the UI. Pressing c, esc or ctrl+c cancels the
// batch; the program quits once the source reports done.
//
// Usage:
//
//	m := batchview.New(runner, queue, batchview.Options{Title: "routes.csv"})
//	if _, err := tea.NewProgram(m).Run(); err != nil {
//		return err
//	}
package batchview
