// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for flai.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Backend URL, timeout and request rate
//   - UIConfig: Theme, frontend and rendering toggles
//   - StorageConfig: Data directory and offline cache
//   - Watcher: Reloads the config file when it changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (FLAI_*), including those set from a .env file
//   - ~/.flai/config.toml
//   - ~/.flai/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := api.NewClient(cfg.Server.URL).WithTimeout(cfg.Server.Timeout())
package config
