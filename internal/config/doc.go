// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and manages parley settings.
//
// # Configuration Precedence
//
// Settings are resolved from (in order of precedence):
//   - Environment variables (PARLEY_*)
//   - ~/.parley/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load settings:
//
//	settings, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// For live reload, wrap them in a Manager and Watch the config file.
package config
