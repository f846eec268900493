// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colour palette and lipgloss styles shared by the
routebatch terminal UI and the CLI's table output.

All colours are lipgloss AdaptiveColor values so they follow the terminal's
light or dark background. A Theme binds the palette to a termenv colour
profile; NewTheme(true) produces an Ascii theme for NO_COLOR terminals and
piped output.

Status text always carries a shape indicator ([OK], [X], [!], [i]) next to
its colour so it stays readable without colour.
*/
package styles
