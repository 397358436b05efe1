// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - Conversation export command handler.
//
// Command: export
// Short:   Write a conversation to a file
//
// Examples:
//   parley export                        Export the active session as markdown
//   parley export 3f2a --format json    Export a session by ID prefix
//   parley export --format text --output ~/notes
//
// Flags:
//   --format FORMAT    text, markdown, or json (default: markdown)
//   --output DIR       Output directory (default: current directory)
//   --timestamps       Include per-message timestamps
//   --no-metadata      Skip the metadata header

package cli

import (
	"fmt"
	"strings"

	"github.com/jeranaias/parley-tui/internal/export"
	"github.com/jeranaias/parley-tui/internal/model"
)

// HandleExport handles the "export" command.
func HandleExport(args Args) error {
	parser := NewArgParser(args.Raw)

	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	sess, err := resolveSession(app, parser.Positional(0))
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	opts.OutputDir = parser.FlagOrDefault("output", opts.OutputDir)
	opts.IncludeTimestamps = parser.BoolFlag("timestamps")
	if parser.BoolFlag("no-metadata") {
		opts.IncludeMetadata = false
	}

	exporter, err := export.ForFormat(parser.FlagOrDefault("format", "markdown"), opts)
	if err != nil {
		return err
	}

	path, err := export.ToFile(sess, exporter, opts)
	if err != nil {
		return err
	}

	if args.Quiet {
		fmt.Println(path)
	} else {
		fmt.Printf("%s %s\n", SuccessStyle.Render("[Exported]"), path)
	}
	return nil
}

// resolveSession picks the session to export: the active one by
// default, or a match by ID prefix.
func resolveSession(app *App, prefix string) (*model.Session, error) {
	if prefix == "" {
		sess := app.Store.ActiveSession()
		if sess.IsEmpty() {
			return nil, fmt.Errorf("active session is empty; nothing to export")
		}
		return sess, nil
	}

	var match *model.Session
	for _, sess := range app.Store.Sessions() {
		if strings.HasPrefix(sess.ID, prefix) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous session id: %s", prefix)
			}
			match = sess
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no session matching %q", prefix)
	}
	return match, nil
}
