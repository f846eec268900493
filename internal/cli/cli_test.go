// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/routebatch/internal/batch"
	"github.com/jeranaias/routebatch/internal/config"
	"github.com/jeranaias/routebatch/internal/routing"
	"github.com/jeranaias/routebatch/internal/storage"
	"github.com/jeranaias/routebatch/internal/ui/styles"
)

// =============================================================================
// COMMAND PARSING
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		wantCmd Command
		wantRaw []string
		check   func(*testing.T, Args)
	}{
		{"no args shows help", nil, CmdHelp, nil, nil},
		{"run", []string{"run", "routes.csv", "-c", "8"}, CmdRun, []string{"routes.csv", "-c", "8"}, nil},
		{"run alias", []string{"r", "routes.csv"}, CmdRun, []string{"routes.csv"}, nil},
		{"watch", []string{"watch", "/tmp/inbox"}, CmdWatch, []string{"/tmp/inbox"}, nil},
		{"runs", []string{"runs", "show", "abc"}, CmdRuns, []string{"show", "abc"}, nil},
		{"history alias", []string{"history"}, CmdRuns, []string{}, nil},
		{"export", []string{"export", "abc", "--format", "csv"}, CmdExport, []string{"abc", "--format", "csv"}, nil},
		{"config", []string{"config", "get", "batch.concurrency"}, CmdConfig, []string{"get", "batch.concurrency"}, nil},
		{"version", []string{"version"}, CmdVersion, []string{}, nil},
		{"help flag", []string{"--help"}, CmdHelp, []string{}, nil},
		{
			name:    "global flags anywhere",
			argv:    []string{"-v", "run", "routes.csv", "--json", "--config", "/etc/rb.toml", "--no-color"},
			wantCmd: CmdRun,
			wantRaw: []string{"routes.csv"},
			check: func(t *testing.T, a Args) {
				assert.True(t, a.Verbose)
				assert.True(t, a.JSON)
				assert.True(t, a.NoColor)
				assert.Equal(t, "/etc/rb.toml", a.ConfigPath)
			},
		},
		{
			name:    "config equals form",
			argv:    []string{"--config=/x.json", "-q", "runs"},
			wantCmd: CmdRuns,
			wantRaw: []string{},
			check: func(t *testing.T, a Args) {
				assert.True(t, a.Quiet)
				assert.Equal(t, "/x.json", a.ConfigPath)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := Parse(tt.argv)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCmd, cmd)
			if tt.wantRaw != nil {
				assert.Equal(t, tt.wantRaw, args.Raw)
			}
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, _, err := Parse([]string{"frobnicate"})
	assert.True(t, IsValidationError(err))

	_, _, err = Parse([]string{"run", "--config"})
	assert.True(t, IsValidationError(err))
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "run", CmdRun.String())
	assert.Equal(t, "runs", CmdRuns.String())
	assert.Equal(t, "help", CmdHelp.String())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"canceled", fmt.Errorf("run: %w", batch.ErrCanceled), ExitCanceled},
		{"reported cancel", reportedError{batch.ErrCanceled}, ExitCanceled},
		{"validation", NewValidationError("concurrency", "0", "must be positive"), ExitUsageError},
		{"csv", &routing.ParseError{Line: 3, Err: routing.ErrInvalidRow}, ExitUsageError},
		{"empty batch", routing.ErrEmptyBatch, ExitUsageError},
		{"config", config.ValidateErrors{{Field: "batch.concurrency", Message: "bad"}}, ExitConfigError},
		{"not found", fmt.Errorf("%w: abc", storage.ErrRunNotFound), ExitNotFoundError},
		{"unauthorized", routing.ErrUnauthorized, ExitAuthError},
		{"timeout", routing.ErrTimeout, ExitNetworkError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, errors.New("boom"), false)
	assert.Equal(t, "Error: boom\n", buf.String())

	buf.Reset()
	DisplayError(&buf, reportedError{batch.ErrCanceled}, false)
	assert.Empty(t, buf.String(), "reported errors are not shown twice")

	buf.Reset()
	DisplayError(&buf, NewValidationErrorWithExample("format", "xls", "unsupported format", "csv"), true)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "validation_error", out["error_type"])
	assert.Equal(t, "format", out["field"])
	assert.Equal(t, "csv", out["example"])
}

func TestCommandErrorUnwrap(t *testing.T) {
	err := NewCommandError("export", "md", "abc", storage.ErrRunNotFound)
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
	assert.Contains(t, err.Error(), "export md failed")
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	NewLogger(&buf, Args{}).Info("hidden")
	assert.Empty(t, buf.String(), "info is below the default level")

	NewLogger(&buf, Args{Verbose: true}).Debug("shown", "k", 1)
	assert.Contains(t, buf.String(), "msg=shown")

	buf.Reset()
	NewLogger(&buf, Args{JSON: true}).Warn("careful")
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "careful", rec["msg"])

	buf.Reset()
	l := NewLogger(&buf, Args{Quiet: true})
	assert.False(t, l.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, l.Enabled(context.Background(), slog.LevelError))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "", maskAPIKey(""))
	assert.Equal(t, "*****", maskAPIKey("short"))
	assert.Equal(t, "abcd****mnop", maskAPIKey("abcdefghmnop"))
	assert.Equal(t, "8", maskIfSecret("batch.concurrency", "8"))
	assert.Equal(t, "****", maskIfSecret("service.api_key", "abcd"))
}

func TestRenderPlain(t *testing.T) {
	assert.Equal(t, "# Report\n", renderMarkdown("# Report\n", 80, true))
	assert.Equal(t, `{"a":1}`, highlightJSON(`{"a":1}`, true))

	out := renderTable(styles.NewTheme(true), []string{"ID", "STATUS"}, [][]string{{"3f2a9c1b", "complete"}})
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "3f2a9c1b")
	assert.Contains(t, out, "complete")
	assert.False(t, strings.Contains(out, "\x1b["), "plain theme must not emit escapes")
}

func TestHighlightJSONColors(t *testing.T) {
	out := highlightJSON(`{"type":"FeatureCollection"}`, false)
	assert.Contains(t, out, "FeatureCollection")
	assert.Contains(t, out, "\x1b[")
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "-", formatElapsed(0))
	assert.Equal(t, "850ms", formatElapsed(850_000_000))
	assert.Equal(t, "1m5s", formatElapsed(65_000_000_000))
}
