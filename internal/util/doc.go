// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across routebatch.
//
// String Utilities:
//   - TruncateRunesNoEllipsis: UTF-8 safe truncation for file names
//   - TruncateWidth, PadWidth, StringWidth: display-width aware layout
//     for terminal columns
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
package util
