// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import "github.com/jeranaias/parley-tui/internal/model"

// Syncer is the persistence collaborator of the session engine. The engine
// loads history once at startup and notifies the syncer after every
// mutation; it never reads back mid-run, so implementations are free to
// write asynchronously as long as LoadSessions reflects all acknowledged
// notifications.
type Syncer interface {
	// LoadSessions returns all persisted sessions, most recently
	// updated first.
	LoadSessions() ([]*model.Session, error)

	// SessionSaved persists the session's current state, replacing any
	// previously stored version.
	SessionSaved(s *model.Session) error

	// SessionDeleted removes the session and its messages.
	SessionDeleted(id string) error
}

// NoopSyncer discards every notification. Used for ephemeral runs.
type NoopSyncer struct{}

func (NoopSyncer) LoadSessions() ([]*model.Session, error) { return nil, nil }
func (NoopSyncer) SessionSaved(*model.Session) error       { return nil }
func (NoopSyncer) SessionDeleted(string) error             { return nil }
