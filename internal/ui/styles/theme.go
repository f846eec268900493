// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styles used by the progress view and CLI output.
type Theme struct {
	// Terminal capabilities
	ColorProfile termenv.Profile
	NoColor      bool

	renderer *lipgloss.Renderer

	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Muted     lipgloss.Style
	Running   lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Separator lipgloss.Style
	Box       lipgloss.Style

	// Table styles
	TableHeader lipgloss.Style
	TableCell   lipgloss.Style
}

// NewTheme creates a theme for the current terminal. With noColor set, or
// when termenv detects no colour support, every style renders plain text.
func NewTheme(noColor bool) *Theme {
	profile := termenv.EnvColorProfile()
	if noColor {
		profile = termenv.Ascii
	}

	r := lipgloss.NewRenderer(termenv.DefaultOutput().TTY())
	r.SetColorProfile(profile)

	t := &Theme{
		ColorProfile: profile,
		NoColor:      profile == termenv.Ascii,
		renderer:     r,
	}
	t.initStyles()
	return t
}

// Renderer returns the lipgloss renderer bound to the theme's profile.
func (t *Theme) Renderer() *lipgloss.Renderer {
	return t.renderer
}

func (t *Theme) initStyles() {
	s := t.renderer.NewStyle

	t.Title = s().Bold(true).Foreground(Purple)
	t.Subtitle = s().Foreground(TextSecondary).Italic(true)
	t.Label = s().Foreground(TextSecondary)
	t.Value = s().Bold(true).Foreground(TextPrimary)
	t.Muted = s().Foreground(TextMuted)
	t.Running = s().Foreground(Cyan)
	t.Success = s().Bold(true).Foreground(Emerald)
	t.Error = s().Bold(true).Foreground(Rose)
	t.Warning = s().Bold(true).Foreground(Amber)
	t.Separator = s().Foreground(Overlay)
	t.Box = s().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)

	t.TableHeader = s().Bold(true).Foreground(Cyan).PaddingRight(2)
	t.TableCell = s().Foreground(TextPrimary).PaddingRight(2)
}

// =============================================================================
// STATUS RENDERING
// =============================================================================

// RenderSuccess renders a message with the success indicator.
func (t *Theme) RenderSuccess(message string) string {
	return t.Success.Render(StatusIndicators.Success + " " + message)
}

// RenderError renders a message with the error indicator.
func (t *Theme) RenderError(message string) string {
	return t.Error.Render(StatusIndicators.Error + " " + message)
}

// RenderWarning renders a message with the warning indicator.
func (t *Theme) RenderWarning(message string) string {
	return t.Warning.Render(StatusIndicators.Warning + " " + message)
}

// RenderInfo renders a message with the info indicator.
func (t *Theme) RenderInfo(message string) string {
	return t.Running.Render(StatusIndicators.Info + " " + message)
}
