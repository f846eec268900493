// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jeranaias/routebatch/internal/storage"
	"github.com/jeranaias/routebatch/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for run exporters.
type Exporter interface {
	// Export converts a run to the target format and returns the content.
	Export(run *storage.Run) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".csv").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files will be saved.
	// Default: current working directory
	OutputDir string

	// OpenAfterExport opens the file in the default application.
	OpenAfterExport bool

	// IncludeFailures keeps failed requests in tabular formats.
	IncludeFailures bool

	// Locale for number formatting in reports.
	// Default: English
	Locale language.Tag
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:       ".",
		IncludeFailures: true,
		Locale:          language.English,
	}
}

// =============================================================================
// FORMAT REGISTRY
// =============================================================================

var formats = map[string]func(*Options) Exporter{
	"csv":     func(o *Options) Exporter { return NewCSVExporter(o) },
	"geojson": func(o *Options) Exporter { return NewGeoJSONExporter(o) },
	"json":    func(o *Options) Exporter { return NewJSONExporter(o) },
	"md":      func(o *Options) Exporter { return NewMarkdownExporter(o) },
}

var aliases = map[string]string{
	"markdown": "md",
	"geo":      "geojson",
}

// Formats returns the supported format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByFormat returns the exporter for a format name.
func ByFormat(name string, opts *Options) (Exporter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	newExporter, ok := formats[name]
	if !ok {
		return nil, fmt.Errorf("unknown export format %q (supported: %s)", name, strings.Join(Formats(), ", "))
	}
	return newExporter(opts), nil
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile exports a run to a file using the specified exporter.
// Returns the output file path or an error.
func ExportToFile(run *storage.Run, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(run)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	outputPath := filepath.Join(dir, Filename(run, exporter))

	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	// Open in default application if requested
	if opts.OpenAfterExport {
		if err := openFile(outputPath); err != nil {
			// Non-fatal - file was still created successfully
			fmt.Printf("Warning: Could not open file: %v\n", err)
		}
	}

	return outputPath, nil
}

// Filename returns the file name a run is exported under, e.g.
// "depots_3f2a9c1b.geojson".
func Filename(run *storage.Run, exporter Exporter) string {
	base := strings.TrimSuffix(filepath.Base(run.Source), filepath.Ext(run.Source))
	return fmt.Sprintf("%s_%s%s", sanitizeFilename(base), run.ShortID(), exporter.FileExtension())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunesNoEllipsis(s, 50)

	replacer := map[rune]rune{
		'/':  '-',
		'\\': '-',
		':':  '-',
		'*':  '-',
		'?':  '-',
		'"':  '-',
		'<':  '-',
		'>':  '-',
		'|':  '-',
		' ':  '_',
		'\t': '_',
	}

	result := []rune{}
	for _, r := range s {
		if replacement, found := replacer[r]; found {
			result = append(result, replacement)
		} else if r < 32 || r == 127 {
			result = append(result, '-')
		} else {
			result = append(result, r)
		}
	}

	if len(result) == 0 || string(result) == "." {
		return "run"
	}
	return string(result)
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

// printer returns a number formatter for the configured locale.
func printer(opts *Options) *message.Printer {
	tag := language.English
	if opts != nil && opts.Locale != language.Und {
		tag = opts.Locale
	}
	return message.NewPrinter(tag)
}

// FormatDistance formats meters as kilometers with locale grouping.
func FormatDistance(p *message.Printer, meters float64) string {
	return p.Sprintf("%.1f km", meters/1000)
}

// FormatDuration formats seconds as "1h 05m" or "4m 12s".
func FormatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}
