// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Shared wiring for parley subcommands.
//
// Every subcommand that touches conversations builds the same stack:
// config manager, SQLite persistence, provider adapter, rate limiter,
// session store. App assembles and tears it down in one place.

package cli

import (
	"fmt"
	"path/filepath"

	"github.com/jeranaias/parley-tui/internal/config"
	"github.com/jeranaias/parley-tui/internal/provider"
	"github.com/jeranaias/parley-tui/internal/ratelimit"
	"github.com/jeranaias/parley-tui/internal/session"
	"github.com/jeranaias/parley-tui/internal/storage"
)

// SessionDBFile is the sessions database filename inside the config dir.
const SessionDBFile = "sessions.db"

// App bundles the wired subsystems behind the CLI.
type App struct {
	Config  *config.Manager
	Adapter *provider.OpenRouterAdapter
	Store   *session.Store
	Syncer  *storage.SQLiteSyncer
}

// NewApp loads configuration and wires the conversation stack. The
// model flag, when set, overrides the configured model for this run.
func NewApp(args Args) (*App, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	path, err := config.Path()
	if err != nil {
		return nil, err
	}
	mgr := config.NewManager(settings, path)

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	syncer, err := storage.NewSQLiteSyncer(filepath.Join(dir, SessionDBFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	adapter := provider.NewOpenRouterAdapter(mgr.Snapshot().APIKey)

	profile := func() session.Profile {
		s := mgr.Snapshot()
		model := s.Model
		if args.Model != "" {
			model = args.Model
		}
		return session.Profile{
			Model:         model,
			MaxTokens:     s.MaxTokens,
			Temperature:   s.Temperature,
			SystemPrompt:  s.SystemPrompt,
			HasCredential: s.HasCredential(),
		}
	}

	store := session.NewStore(adapter, ratelimit.NewDefault(), syncer, profile)
	if err := store.LoadHistory(); err != nil {
		// A corrupt history is not fatal: start with a fresh draft.
		fmt.Println(WarningStyle.Render("[Warning]"), err)
	}

	return &App{
		Config:  mgr,
		Adapter: adapter,
		Store:   store,
		Syncer:  syncer,
	}, nil
}

// Close releases the database and the config watcher.
func (a *App) Close() {
	if a.Config != nil {
		a.Config.Close()
	}
	if a.Syncer != nil {
		a.Syncer.Close()
	}
}
