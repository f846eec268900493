// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"

	"github.com/jeranaias/routebatch/internal/routing"
	"github.com/jeranaias/routebatch/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete routebatch configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Routing service connection
	Service ServiceConfig `toml:"service" json:"service"`

	// Batch execution defaults
	Batch BatchConfig `toml:"batch" json:"batch"`

	// Run history database
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Inbox watching
	Watch WatchConfig `toml:"watch" json:"watch"`

	// Terminal output
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServiceConfig describes the routing service.
type ServiceConfig struct {
	// URL is the base URL of the directions API
	URL string `toml:"url" json:"url"`

	// APIKey is sent in the Authorization header
	APIKey string `toml:"api_key" json:"api_key"`

	// Profile is the default travel profile (driving-car, foot-walking, ...)
	Profile string `toml:"profile" json:"profile"`

	// TimeoutSecs is the per-request HTTP timeout
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// MaxRetries for connection errors, 429 and 5xx responses
	MaxRetries int `toml:"max_retries" json:"max_retries"`

	// RetryDelayMs before the first retry
	RetryDelayMs int `toml:"retry_delay_ms" json:"retry_delay_ms"`

	// RequestsPerSecond caps the request rate (0 = unlimited)
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`

	// Burst is the number of requests allowed back to back
	Burst int `toml:"burst" json:"burst"`
}

// BatchConfig holds defaults for `routebatch run`.
type BatchConfig struct {
	// Concurrency is the maximum number of requests in flight
	Concurrency int `toml:"concurrency" json:"concurrency"`

	// TaskTimeoutSecs settles a request that has not answered in time
	// as a failure (0 = wait until canceled)
	TaskTimeoutSecs int `toml:"task_timeout_secs" json:"task_timeout_secs"`

	// ExportFormat written after each run ("" = no export)
	ExportFormat string `toml:"export_format" json:"export_format"`

	// ExportDir receives exported files
	ExportDir string `toml:"export_dir" json:"export_dir"`
}

// StorageConfig configures run history.
type StorageConfig struct {
	// DBPath is the SQLite database file
	DBPath string `toml:"db_path" json:"db_path"`

	// HistoryLimit is the number of runs `routebatch runs` lists
	HistoryLimit int `toml:"history_limit" json:"history_limit"`
}

// WatchConfig configures `routebatch watch`.
type WatchConfig struct {
	// InboxDir is watched for new CSV files
	InboxDir string `toml:"inbox_dir" json:"inbox_dir"`

	// DebounceMs waits for writes to a file to settle
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms"`
}

// UIConfig configures terminal output.
type UIConfig struct {
	// TUI shows the interactive progress view when stdout is a terminal
	TUI bool `toml:"tui" json:"tui"`

	// NoColor disables colored output
	NoColor bool `toml:"no_color" json:"no_color"`

	// Locale for number formatting (BCP 47, e.g. "en", "de-DE"); empty
	// means detect from the environment
	Locale string `toml:"locale" json:"locale"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = ".routebatch"
	}
	return &Config{
		Version: "1",
		Service: ServiceConfig{
			URL:               "https://api.openrouteservice.org",
			Profile:           routing.DefaultProfile,
			TimeoutSecs:       30,
			MaxRetries:        3,
			RetryDelayMs:      1000,
			RequestsPerSecond: 0,
			Burst:             1,
		},
		Batch: BatchConfig{
			Concurrency:  4,
			ExportFormat: "",
			ExportDir:    ".",
		},
		Storage: StorageConfig{
			DBPath:       filepath.Join(dir, "routebatch.db"),
			HistoryLimit: 20,
		},
		Watch: WatchConfig{
			InboxDir:   filepath.Join(dir, "inbox"),
			DebounceMs: 500,
		},
		UI: UIConfig{
			TUI: true,
		},
	}
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}

	if c.Service.URL == "" {
		c.Service.URL = d.Service.URL
	}
	if c.Service.Profile == "" {
		c.Service.Profile = d.Service.Profile
	}
	if c.Service.TimeoutSecs == 0 {
		c.Service.TimeoutSecs = d.Service.TimeoutSecs
	}
	if c.Service.RetryDelayMs == 0 {
		c.Service.RetryDelayMs = d.Service.RetryDelayMs
	}
	if c.Service.Burst == 0 {
		c.Service.Burst = d.Service.Burst
	}

	if c.Batch.Concurrency == 0 {
		c.Batch.Concurrency = d.Batch.Concurrency
	}
	if c.Batch.ExportDir == "" {
		c.Batch.ExportDir = d.Batch.ExportDir
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = d.Storage.DBPath
	}
	if c.Storage.HistoryLimit == 0 {
		c.Storage.HistoryLimit = d.Storage.HistoryLimit
	}

	if c.Watch.InboxDir == "" {
		c.Watch.InboxDir = d.Watch.InboxDir
	}
	if c.Watch.DebounceMs == 0 {
		c.Watch.DebounceMs = d.Watch.DebounceMs
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the routebatch configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("ROUTEBATCH_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".routebatch"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	warnInsecurePermissions(path)

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	warnInsecurePermissions(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
// Files ending in .json are decoded as JSON, everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// warnInsecurePermissions complains about a group or world readable config
// file that holds an API key.
func warnInsecurePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0077 != 0 {
		data, err := os.ReadFile(path)
		if err == nil && bytes.Contains(data, []byte("api_key")) {
			fmt.Fprintf(os.Stderr, "Warning: %s is readable by other users and contains an API key (chmod 600 it)\n", path)
		}
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# routebatch configuration file")
	fmt.Fprintln(&buf, "# Generated by routebatch - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// validExportFormats mirrors the export package's registry.
var validExportFormats = map[string]bool{"": true, "csv": true, "geojson": true, "json": true, "md": true}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Service
	if u, err := url.Parse(c.Service.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("service.url", "invalid URL '%s', must be http(s)://host[:port]", c.Service.URL)
	}
	if !routing.ValidProfile(c.Service.Profile) {
		add("service.profile", "unknown profile '%s', must be one of: %s",
			c.Service.Profile, strings.Join(routing.Profiles, ", "))
	}
	if c.Service.TimeoutSecs < 1 || c.Service.TimeoutSecs > 600 {
		add("service.timeout_secs", "must be between 1 and 600, got %d", c.Service.TimeoutSecs)
	}
	if c.Service.MaxRetries < 0 || c.Service.MaxRetries > 10 {
		add("service.max_retries", "must be between 0 and 10, got %d", c.Service.MaxRetries)
	}
	if c.Service.RetryDelayMs < 0 {
		add("service.retry_delay_ms", "must not be negative, got %d", c.Service.RetryDelayMs)
	}
	if c.Service.RequestsPerSecond < 0 {
		add("service.requests_per_second", "must not be negative, got %g", c.Service.RequestsPerSecond)
	}
	if c.Service.Burst < 1 {
		add("service.burst", "must be at least 1, got %d", c.Service.Burst)
	}

	// Batch
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 256 {
		add("batch.concurrency", "must be between 1 and 256, got %d", c.Batch.Concurrency)
	}
	if c.Batch.TaskTimeoutSecs < 0 {
		add("batch.task_timeout_secs", "must not be negative, got %d", c.Batch.TaskTimeoutSecs)
	}
	if !validExportFormats[strings.ToLower(c.Batch.ExportFormat)] {
		add("batch.export_format", "invalid format '%s', must be one of: csv, geojson, json, md", c.Batch.ExportFormat)
	}

	// Storage
	if c.Storage.HistoryLimit < 1 {
		add("storage.history_limit", "must be at least 1, got %d", c.Storage.HistoryLimit)
	}

	// Watch
	if c.Watch.DebounceMs < 0 {
		add("watch.debounce_ms", "must not be negative, got %d", c.Watch.DebounceMs)
	}

	// UI
	if c.UI.Locale != "" {
		if _, err := language.Parse(c.UI.Locale); err != nil {
			add("ui.locale", "invalid locale '%s': %v", c.UI.Locale, err)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - ROUTEBATCH_SERVICE_URL: overrides service.url
//   - ROUTEBATCH_API_KEY: overrides service.api_key
//   - ROUTEBATCH_PROFILE: overrides service.profile
//   - ROUTEBATCH_CONCURRENCY: overrides batch.concurrency
//   - ROUTEBATCH_DB: overrides storage.db_path
//   - NO_COLOR: sets ui.no_color
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("ROUTEBATCH_SERVICE_URL"); u != "" {
		c.Service.URL = u
	}
	if key := os.Getenv("ROUTEBATCH_API_KEY"); key != "" {
		c.Service.APIKey = key
	}
	if profile := os.Getenv("ROUTEBATCH_PROFILE"); profile != "" {
		c.Service.Profile = profile
	}
	if n := os.Getenv("ROUTEBATCH_CONCURRENCY"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.Batch.Concurrency = v
		}
	}
	if db := os.Getenv("ROUTEBATCH_DB"); db != "" {
		c.Storage.DBPath = db
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		c.UI.NoColor = true
	}
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// ClientConfig returns the routing client configuration.
func (c *Config) ClientConfig() *routing.ClientConfig {
	return &routing.ClientConfig{
		BaseURL:           c.Service.URL,
		APIKey:            c.Service.APIKey,
		Profile:           c.Service.Profile,
		Timeout:           time.Duration(c.Service.TimeoutSecs) * time.Second,
		MaxRetries:        c.Service.MaxRetries,
		RetryDelay:        time.Duration(c.Service.RetryDelayMs) * time.Millisecond,
		RequestsPerSecond: c.Service.RequestsPerSecond,
		Burst:             c.Service.Burst,
	}
}

// TaskTimeout returns the per-request settlement deadline.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Batch.TaskTimeoutSecs) * time.Second
}

// Debounce returns the watch debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// Locale returns the configured locale, falling back to LC_ALL, LC_MESSAGES
// and LANG, then English.
func (c *Config) Locale() language.Tag {
	candidates := []string{c.UI.Locale, os.Getenv("LC_ALL"), os.Getenv("LC_MESSAGES"), os.Getenv("LANG")}
	for _, s := range candidates {
		// Strip encoding and modifier: de_DE.UTF-8@euro -> de_DE
		if i := strings.IndexAny(s, ".@"); i >= 0 {
			s = s[:i]
		}
		if s == "" || s == "C" || s == "POSIX" {
			continue
		}
		if tag, err := language.Parse(strings.ReplaceAll(s, "_", "-")); err == nil {
			return tag
		}
	}
	return language.English
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "batch.concurrency").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "batch.concurrency").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks a dotted key to a leaf field.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}

		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"service.url",
		"service.api_key",
		"service.profile",
		"service.timeout_secs",
		"service.max_retries",
		"service.retry_delay_ms",
		"service.requests_per_second",
		"service.burst",
		"batch.concurrency",
		"batch.task_timeout_secs",
		"batch.export_format",
		"batch.export_dir",
		"storage.db_path",
		"storage.history_limit",
		"watch.inbox_dir",
		"watch.debounce_ms",
		"ui.tui",
		"ui.no_color",
		"ui.locale",
	}
}

// =============================================================================
// COPY AND DISPLAY
// =============================================================================

// Clone creates a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as JSON with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Service.APIKey != "" {
		safe.Service.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
