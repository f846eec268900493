// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package batchview

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keyboard bindings of the progress view.
type KeyMap struct {
	Cancel key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Cancel: key.NewBinding(
			key.WithKeys("c", "esc", "ctrl+c"),
			key.WithHelp("c/esc", "cancel batch"),
		),
	}
}
