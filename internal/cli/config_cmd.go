// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - The "config" command.

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/routebatch/internal/config"
)

// HandleConfig handles "routebatch config [show|get KEY|set KEY VALUE|path]".
func (a *App) HandleConfig(raw []string) error {
	p := NewArgParser(raw)

	switch sub := p.Subcommand(); sub {
	case "", "show":
		return a.showConfig()
	case "get":
		key := p.Positional(1)
		if key == "" {
			return ErrMissingArgument("KEY", "routebatch config get batch.concurrency")
		}
		return a.getConfig(key)
	case "set":
		key, value := p.Positional(1), p.Positional(2)
		if key == "" || p.PositionalCount() < 3 {
			return ErrMissingArgument("KEY VALUE", "routebatch config set batch.concurrency 8")
		}
		return a.setConfig(key, value)
	case "path":
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		if a.json {
			return NewJSONResponse("config path", ConfigData{Path: path}).Print()
		}
		fmt.Fprintln(stdout, path)
		return nil
	default:
		return NewValidationErrorWithExample("subcommand", sub, "unknown config subcommand",
			"routebatch config [show|get KEY|set KEY VALUE|path]")
	}
}

func (a *App) showConfig() error {
	if a.json {
		safe := a.cfg.Clone()
		safe.Service.APIKey = maskAPIKey(safe.Service.APIKey)
		return NewJSONResponse("config show", safe).Print()
	}

	rows := make([][]string, 0, len(config.GetAllKeys()))
	for _, key := range config.GetAllKeys() {
		v, err := a.cfg.Get(key)
		if err != nil {
			continue
		}
		rows = append(rows, []string{key, maskIfSecret(key, fmt.Sprint(v))})
	}
	fmt.Fprintln(stdout, renderTable(a.theme, []string{"KEY", "VALUE"}, rows))
	return nil
}

func (a *App) getConfig(key string) error {
	v, err := a.cfg.Get(key)
	if err != nil {
		return NewValidationError("key", key, err.Error())
	}
	shown := maskIfSecret(key, fmt.Sprint(v))
	if a.json {
		return NewJSONResponse("config get", ConfigData{Key: key, Value: shown}).Print()
	}
	fmt.Fprintln(stdout, shown)
	return nil
}

// setConfig updates one key in the config file. The file is read without
// environment overrides so they are not persisted.
func (a *App) setConfig(key, value string) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	if jsonPath, err := config.ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr != nil {
			if _, jsonErr := os.Stat(jsonPath); jsonErr == nil {
				path = jsonPath
			}
		}
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		load := config.LoadTOML
		if strings.HasSuffix(path, ".json") {
			load = config.LoadJSON
		}
		if err := load(cfg, path); err != nil {
			return err
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return NewValidationError("key", key, err.Error())
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	save := config.SaveTOML
	if strings.HasSuffix(path, ".json") {
		save = config.SaveJSON
	}
	if err := save(cfg, path); err != nil {
		return NewCommandError("config", "set", key, err)
	}

	if a.json {
		return NewJSONResponse("config set", ConfigData{Key: key, Value: maskIfSecret(key, value), Path: path}).Print()
	}
	a.say("%s", a.theme.RenderSuccess(fmt.Sprintf("%s = %s", key, maskIfSecret(key, value))))
	return nil
}

// maskAPIKey keeps the first and last four characters of a key.
func maskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func maskIfSecret(key, value string) string {
	if strings.HasSuffix(key, "api_key") {
		return maskAPIKey(value)
	}
	return value
}
