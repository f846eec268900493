// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/routebatch/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders a run as a Markdown report. The same report is
// shown by `routebatch runs show`.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a run to Markdown format.
func (e *MarkdownExporter) Export(run *storage.Run) ([]byte, error) {
	if run == nil {
		return nil, fmt.Errorf("run is nil")
	}
	if run.StartedAt.IsZero() {
		return nil, fmt.Errorf("run has invalid start timestamp")
	}

	p := printer(e.options)
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Run %s\n\n", run.ShortID()))

	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Source**: %s\n", escapeMarkdown(run.Source)))
	sb.WriteString(fmt.Sprintf("- **Profile**: %s\n", run.Profile))
	sb.WriteString(fmt.Sprintf("- **Status**: %s\n", run.Status))
	sb.WriteString(fmt.Sprintf("- **Started**: %s\n", formatTimestamp(run.StartedAt)))
	sb.WriteString(fmt.Sprintf("- **Finished**: %s\n", formatTimestamp(run.FinishedAt)))
	if !run.FinishedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("- **Elapsed**: %s\n", run.Duration().Round(time.Millisecond)))
	}
	sb.WriteString(p.Sprintf("- **Requests**: %d settled of %d (%d failed), concurrency %d\n",
		run.Completed, run.Total, run.Failed, run.Concurrency))

	ok := run.Succeeded()
	if len(ok) > 0 {
		var dist, dur float64
		for _, r := range ok {
			dist += r.Distance
			dur += r.Duration
		}
		sb.WriteString(fmt.Sprintf("- **Total distance**: %s\n", FormatDistance(p, dist)))
		sb.WriteString(fmt.Sprintf("- **Total duration**: %s\n", FormatDuration(dur)))
	}
	sb.WriteString("\n")

	if len(run.Routes) > 0 {
		sb.WriteString("## Routes\n\n")
		sb.WriteString("| # | ID | Label | Distance | Duration | Result |\n")
		sb.WriteString("|--:|----|-------|---------:|---------:|--------|\n")
		for _, r := range run.Routes {
			if r.Failed() && !e.options.IncludeFailures {
				continue
			}
			dist, dur, result := "", "", "ok"
			if r.Failed() {
				result = "**failed**: " + escapeMarkdown(r.Error)
			} else {
				dist = FormatDistance(p, r.Distance)
				dur = FormatDuration(r.Duration)
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s |\n",
				r.Index+1, escapeMarkdown(r.RequestID), escapeMarkdown(r.Label), dist, dur, result))
		}
		sb.WriteString("\n")
	}

	if missing := run.Total - len(run.Routes); missing > 0 {
		sb.WriteString(p.Sprintf("*%d requests were not settled before the run ended.*\n\n", missing))
	}

	sb.WriteString(fmt.Sprintf("*Exported by routebatch on %s*\n",
		time.Now().Format("January 2, 2006 at 3:04 PM")))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// escapeMarkdown escapes characters that would break a table cell or
// inline formatting.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"|", `\|`,
		"*", `\*`,
		"_", `\_`,
		"`", "\\`",
		"\n", " ",
	)
	return r.Replace(s)
}
