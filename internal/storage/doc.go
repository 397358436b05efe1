// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session history persistence for parley.
//
// The engine talks to a Syncer: it loads sessions at startup and notifies
// the syncer after every save or delete. The shipped implementation keeps
// history in a SQLite database under ~/.parley/.
//
// # Usage
//
// Open a syncer and hand it to the session store:
//
//	syncer, err := storage.NewSQLiteSyncer(dbPath)
//	sessions, err := syncer.LoadSessions()
//
// A NoopSyncer serves ephemeral (no-persistence) runs.
package storage
