// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/parley-tui/internal/util"
)

// Clamping bounds for numeric settings.
const (
	MinMaxTokens = 1
	MaxMaxTokens = 32768

	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings is the complete parley configuration.
type Settings struct {
	// APIKey is the provider credential. Never logged in full; only its
	// SHA-256 fingerprint appears in log lines.
	APIKey string `toml:"api_key"`

	// Model is the provider model identifier for new requests.
	Model string `toml:"model"`

	// MaxTokens caps the response length per request.
	MaxTokens int `toml:"max_tokens"`

	// Temperature controls sampling randomness (0.0-2.0).
	Temperature float64 `toml:"temperature"`

	// SystemPrompt is prepended to every conversation when non-empty.
	SystemPrompt string `toml:"system_prompt"`

	// Theme is the display theme: "dark", "light", "auto".
	Theme string `toml:"theme"`

	// VoiceEnabled turns on voice features.
	VoiceEnabled bool `toml:"voice_enabled"`

	// AutoSpeak reads completed assistant replies aloud when voice is on.
	AutoSpeak bool `toml:"auto_speak"`
}

// Default returns Settings with sensible default values.
func Default() *Settings {
	return &Settings{
		APIKey:       "",
		Model:        "anthropic/claude-3.5-sonnet",
		MaxTokens:    1024,
		Temperature:  0.7,
		SystemPrompt: "",
		Theme:        "dark",
		VoiceEnabled: false,
		AutoSpeak:    false,
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the parley configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".parley"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on the config file.
// SECURITY: the file holds the API key, so it must be 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads settings from the default config file, falling back to
// defaults when the file is absent. Environment overrides are applied
// last, then values are clamped into valid ranges.
func Load() (*Settings, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads settings from a specific file path. A missing file
// is not an error: defaults are used.
func LoadFromPath(path string) (*Settings, error) {
	s, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	s.ApplyEnvOverrides()
	s.Clamp()
	return s, nil
}

// LoadFileOnly reads the default config file without applying
// environment overrides. Use it when editing and re-saving the file, so
// session-local env values are not baked into it.
func LoadFileOnly() (*Settings, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	s, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	s.Clamp()
	return s, nil
}

func loadFile(path string) (*Settings, error) {
	s := Default()

	if _, err := os.Stat(path); err == nil {
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}
		if _, err := toml.DecodeFile(path, s); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		fillDefaults(s)
	}
	return s, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(s *Settings) {
	defaults := Default()
	if s.Model == "" {
		s.Model = defaults.Model
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = defaults.MaxTokens
	}
	if s.Theme == "" {
		s.Theme = defaults.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - PARLEY_API_KEY: overrides api_key
//   - PARLEY_MODEL: overrides model
//   - PARLEY_SYSTEM_PROMPT: overrides system_prompt
//   - PARLEY_THEME: overrides theme
//   - PARLEY_VOICE: set to "1" or "true" to enable voice features
//   - PARLEY_AUTO_SPEAK: set to "1" or "true" to speak completed replies
func (s *Settings) ApplyEnvOverrides() {
	if key := os.Getenv("PARLEY_API_KEY"); key != "" {
		s.APIKey = key
	}
	if model := os.Getenv("PARLEY_MODEL"); model != "" {
		s.Model = model
	}
	if prompt := os.Getenv("PARLEY_SYSTEM_PROMPT"); prompt != "" {
		s.SystemPrompt = prompt
	}
	if theme := os.Getenv("PARLEY_THEME"); theme != "" {
		s.Theme = theme
	}
	if voice := os.Getenv("PARLEY_VOICE"); voice != "" {
		s.VoiceEnabled = isTruthy(voice)
	}
	if speak := os.Getenv("PARLEY_AUTO_SPEAK"); speak != "" {
		s.AutoSpeak = isTruthy(speak)
	}
}

func isTruthy(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

// =============================================================================
// VALIDATION
// =============================================================================

// Clamp forces every numeric setting into its valid range and resets
// unknown enum values to their defaults. Out-of-range input never fails
// the load; it is corrected.
func (s *Settings) Clamp() {
	if s.MaxTokens < MinMaxTokens {
		s.MaxTokens = MinMaxTokens
	}
	if s.MaxTokens > MaxMaxTokens {
		s.MaxTokens = MaxMaxTokens
	}

	if s.Temperature < MinTemperature {
		s.Temperature = MinTemperature
	}
	if s.Temperature > MaxTemperature {
		s.Temperature = MaxTemperature
	}

	switch strings.ToLower(s.Theme) {
	case "dark", "light", "auto":
		s.Theme = strings.ToLower(s.Theme)
	default:
		s.Theme = Default().Theme
	}

	// AutoSpeak without voice makes no sense.
	if !s.VoiceEnabled {
		s.AutoSpeak = false
	}

	s.APIKey = strings.TrimSpace(s.APIKey)
}

// HasCredential reports whether an API key is configured.
func (s *Settings) HasCredential() bool {
	return s.APIKey != ""
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the settings to the default TOML config file.
func Save(s *Settings) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(s, path)
}

// SaveToPath writes the settings to a specific file path.
// SECURITY: 0600 permissions, the file holds the API key.
// RELIABILITY: atomic write with fsync prevents data loss on crash.
func SaveToPath(s *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# parley configuration file\n")
	buf.WriteString("# Generated by parley - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
