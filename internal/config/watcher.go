// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses editor write bursts into one reload.
const DefaultDebounce = 250 * time.Millisecond

// =============================================================================
// SETTINGS MANAGER
// =============================================================================

// Manager holds the live settings, serving consistent snapshots while the
// config file may be rewritten underneath by the user or another process.
type Manager struct {
	mu       sync.RWMutex
	settings *Settings
	path     string

	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(Settings)
	cancel   context.CancelFunc
}

// NewManager wraps loaded settings for the given config path.
func NewManager(s *Settings, path string) *Manager {
	return &Manager{
		settings: s,
		path:     path,
		debounce: DefaultDebounce,
	}
}

// Snapshot returns a copy of the current settings. The copy is safe to
// read while later reloads land.
func (m *Manager) Snapshot() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.settings
}

// Update applies fn to the settings under the lock, clamps the result,
// and persists it.
func (m *Manager) Update(fn func(*Settings)) error {
	m.mu.Lock()
	fn(m.settings)
	m.settings.Clamp()
	updated := *m.settings
	m.mu.Unlock()

	return SaveToPath(&updated, m.path)
}

// OnChange registers a callback invoked with the new snapshot after every
// successful reload. Must be called before Watch.
func (m *Manager) OnChange(fn func(Settings)) {
	m.onChange = fn
}

// Watch starts watching the config file and reloading on change. The
// parent directory is watched rather than the file itself: atomic saves
// replace the inode, which would silently detach a file-level watch.
func (m *Manager) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.watcher = watcher
	m.cancel = cancel

	go m.processEvents(ctx)
	return nil
}

// Close stops watching and releases resources.
func (m *Manager) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// processEvents debounces file events and reloads the settings.
func (m *Manager) processEvents(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(m.debounce)
				timerC = timer.C
			} else {
				// The timer may have fired with its tick still unread;
				// drain it or Reset would deliver a stale tick and an
				// early reload.
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(m.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			m.reload()

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config watch: %v", err)
		}
	}
}

// reload re-reads the config file and swaps the settings in.
func (m *Manager) reload() {
	fresh, err := LoadFromPath(m.path)
	if err != nil {
		log.Printf("config reload failed, keeping previous settings: %v", err)
		return
	}

	m.mu.Lock()
	m.settings = fresh
	snapshot := *fresh
	m.mu.Unlock()

	log.Printf("config reloaded from %s", m.path)
	if m.onChange != nil {
		m.onChange(snapshot)
	}
}
