// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for routebatch output.
//
// The interactive progress view, colors and glamour rendering are only
// used when the output stream is a terminal; piped output stays plain.

package cli

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Width bounds for tables and rendered reports.
const (
	fallbackWidth = 80
	minWidth      = 40
)

// isTerminal reports whether w is a file attached to a terminal. Buffers
// and pipes are not.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// IsStdoutTTY reports whether command output goes to a terminal.
func IsStdoutTTY() bool {
	return isTerminal(stdout)
}

// GetTerminalWidth returns the width of the terminal on stdout, or 80 when
// stdout is not a terminal.
func GetTerminalWidth() int {
	f, ok := stdout.(*os.File)
	if !ok {
		return fallbackWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallbackWidth
	}
	return max(width, minWidth)
}

// ColorsEnabled follows the NO_COLOR and FORCE_COLOR conventions and
// otherwise enables color only on a terminal.
func ColorsEnabled() bool {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return false
	case os.Getenv("FORCE_COLOR") != "":
		return true
	default:
		return IsStdoutTTY()
	}
}
