// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for routebatch.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServiceConfig: Routing service endpoint, key, retries and pacing
//   - BatchConfig: Concurrency and export defaults for runs
//   - StorageConfig, WatchConfig, UIConfig
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (ROUTEBATCH_*)
//   - ~/.routebatch/config.toml
//   - ~/.routebatch/config.json
//   - Built-in defaults
//
// ROUTEBATCH_HOME relocates the ~/.routebatch directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := routing.NewClient(cfg.ClientConfig(), logger)
package config
