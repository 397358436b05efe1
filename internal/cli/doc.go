// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the parley command line surface: argument
// parsing, the interactive chat REPL, and the sessions, export, and
// config subcommands.
//
// The chat REPL streams replies token by token, renders completed
// markdown replies with glamour when stdout is a terminal, and offers
// readline-style input history via liner. All conversation state lives
// in the session store; the CLI is a thin front-end over it.
package cli
