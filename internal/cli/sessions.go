// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions.go - Session management command handler.
//
// Command: sessions
// Short:   List and delete persisted conversations
//
// Examples:
//   parley sessions               List sessions
//   parley sessions list          List sessions
//   parley sessions delete <id>   Delete a session

package cli

import (
	"fmt"
	"strings"

	"github.com/jeranaias/parley-tui/internal/export"
)

// HandleSessions handles the "sessions" command.
func HandleSessions(args Args) error {
	parser := NewArgParser(args.Raw)

	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	switch parser.Subcommand() {
	case "", "list", "ls":
		fmt.Print(export.FormatSessionTable(app.Store.Sessions(), app.Store.ActiveSessionID()))
		return nil

	case "delete", "rm":
		id := parser.Positional(1)
		if id == "" {
			return fmt.Errorf("usage: parley sessions delete <id>")
		}
		return deleteSession(app, id)

	default:
		return fmt.Errorf("unknown sessions subcommand: %s", parser.Subcommand())
	}
}

// deleteSession removes a session matched by ID or unique prefix.
func deleteSession(app *App, prefix string) error {
	var matched string
	for _, sess := range app.Store.Sessions() {
		if strings.HasPrefix(sess.ID, prefix) {
			if matched != "" {
				return fmt.Errorf("ambiguous session id: %s", prefix)
			}
			matched = sess.ID
		}
	}
	if matched == "" {
		return fmt.Errorf("no session matching %q", prefix)
	}

	app.Store.DeleteSession(matched)
	fmt.Printf("%s %s\n", SuccessStyle.Render("[Deleted]"), matched)
	return nil
}
