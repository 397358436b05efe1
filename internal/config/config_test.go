// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every PARLEY_* override for the test's duration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PARLEY_API_KEY", "PARLEY_MODEL", "PARLEY_SYSTEM_PROMPT", "PARLEY_THEME", "PARLEY_VOICE", "PARLEY_AUTO_SPEAK"} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	s := Default()

	assert.Equal(t, "anthropic/claude-3.5-sonnet", s.Model)
	assert.Equal(t, 1024, s.MaxTokens)
	assert.InDelta(t, 0.7, s.Temperature, 0.001)
	assert.Equal(t, "dark", s.Theme)
	assert.False(t, s.HasCredential())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	s, err := LoadFromPath(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Model, s.Model)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	s := Default()
	s.APIKey = "sk-or-roundtrip"
	s.Model = "meta-llama/llama-3-70b"
	s.MaxTokens = 2048
	s.Temperature = 1.1
	s.SystemPrompt = "be brief"
	s.Theme = "light"
	s.VoiceEnabled = true
	s.AutoSpeak = true
	require.NoError(t, SaveToPath(s, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, *s, *loaded)
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveToPath(Default(), path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "config file must be owner-only, it holds the API key")
}

func TestLoadFixesInsecurePermissions(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveToPath(Default(), path))
	require.NoError(t, os.Chmod(path, 0644))

	_, err := LoadFromPath(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARLEY_API_KEY", "sk-or-from-env")
	t.Setenv("PARLEY_MODEL", "env/model")
	t.Setenv("PARLEY_THEME", "light")
	t.Setenv("PARLEY_VOICE", "true")
	t.Setenv("PARLEY_AUTO_SPEAK", "1")

	s, err := LoadFromPath(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-or-from-env", s.APIKey)
	assert.Equal(t, "env/model", s.Model)
	assert.Equal(t, "light", s.Theme)
	assert.True(t, s.VoiceEnabled)
	assert.True(t, s.AutoSpeak)
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name  string
		in    Settings
		check func(t *testing.T, s Settings)
	}{
		{
			name: "max tokens floor",
			in:   Settings{MaxTokens: -5},
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, MinMaxTokens, s.MaxTokens)
			},
		},
		{
			name: "max tokens ceiling",
			in:   Settings{MaxTokens: 1 << 20},
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, MaxMaxTokens, s.MaxTokens)
			},
		},
		{
			name: "temperature range",
			in:   Settings{Temperature: 9.5},
			check: func(t *testing.T, s Settings) {
				assert.InDelta(t, MaxTemperature, s.Temperature, 0.001)
			},
		},
		{
			name: "unknown theme resets",
			in:   Settings{Theme: "solarized"},
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, "dark", s.Theme)
			},
		},
		{
			name: "auto speak requires voice",
			in:   Settings{AutoSpeak: true, VoiceEnabled: false},
			check: func(t *testing.T, s Settings) {
				assert.False(t, s.AutoSpeak)
			},
		},
		{
			name: "key whitespace trimmed",
			in:   Settings{APIKey: "  sk-or-padded  "},
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, "sk-or-padded", s.APIKey)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.in
			s.Clamp()
			tc.check(t, s)
		})
	}
}

func TestManagerSnapshotIsCopy(t *testing.T) {
	m := NewManager(Default(), filepath.Join(t.TempDir(), "config.toml"))

	snap := m.Snapshot()
	snap.Model = "mutated/elsewhere"

	assert.NotEqual(t, snap.Model, m.Snapshot().Model)
}

func TestManagerUpdatePersists(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	m := NewManager(Default(), path)

	require.NoError(t, m.Update(func(s *Settings) {
		s.Model = "updated/model"
		s.Temperature = 99 // clamped on the way through
	}))

	assert.Equal(t, "updated/model", m.Snapshot().Model)
	assert.InDelta(t, MaxTemperature, m.Snapshot().Temperature, 0.001)

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "updated/model", loaded.Model)
}

func TestManagerConcurrentAccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	m := NewManager(Default(), path)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.Update(func(s *Settings) { s.MaxTokens++ })
		}()
		go func() {
			defer wg.Done()
			_ = m.Snapshot()
		}()
	}
	wg.Wait()
}

func TestWatchReloadsAfterBurst(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	s := Default()
	require.NoError(t, SaveToPath(s, path))

	m := NewManager(Default(), path)
	m.debounce = 50 * time.Millisecond
	defer m.Close()

	reloaded := make(chan Settings, 8)
	m.OnChange(func(snap Settings) { reloaded <- snap })
	require.NoError(t, m.Watch())

	// A burst of saves inside the debounce window collapses into a
	// single reload carrying the final contents.
	for _, name := range []string{"model/one", "model/two", "model/final"} {
		s.Model = name
		require.NoError(t, SaveToPath(s, path))
	}

	select {
	case snap := <-reloaded:
		assert.Equal(t, "model/final", snap.Model)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload observed")
	}
	assert.Equal(t, "model/final", m.Snapshot().Model)
}
