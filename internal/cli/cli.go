// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and top-level dispatch for parley.
//
// CLI: Comprehensive help and examples for all commands

package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdSessions
	CmdExport
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Model string
	Quiet bool

	// Remaining args after the command word, for subcommand parsers.
	Raw []string
}

const usageText = `parley - streaming LLM chat for the terminal

Parley is a terminal chat client for OpenRouter-compatible providers.

It provides:
  - Token-by-token streaming with cancel (Ctrl+C)
  - Persistent sessions in a local SQLite database
  - File attachments inlined into the conversation
  - Markdown rendering for completed replies
  - Conversation export to text, markdown, and JSON

Usage:
  parley                         Start interactive chat (default)
  parley chat                    Same as above
  parley sessions [subcommand]   Session management
  parley export [id] [flags]     Export a conversation
  parley config [show|set|path]  Configuration
  parley version                 Show version information
  parley help                    Show this help

Session Commands:
  parley sessions                List sessions
  parley sessions list           List sessions
  parley sessions delete <id>    Delete a session

Export Flags:
  --format FORMAT      text, markdown, or json (default: markdown)
  --output DIR         Output directory (default: current directory)
  --timestamps         Include per-message timestamps
  --no-metadata        Skip the metadata header

Config Commands:
  parley config                  Show current settings
  parley config set KEY VALUE    Set a setting (model, max_tokens,
                                 temperature, system_prompt, theme,
                                 voice_enabled, auto_speak, api_key)
  parley config path             Print the config file location

Global Flags:
  -m, --model NAME     Override the configured model for this run
  -q, --quiet          Minimal output

Interactive Commands (during chat):
  /help                Show available commands
  /new                 Start a new session
  /sessions            List sessions
  /switch <id>         Switch to another session
  /attach <path>       Attach a file to the next message
  /retry               Regenerate the last reply
  /edit <text>         Edit your last message and resend
  /export [format]     Export the current session
  /history             Show conversation history
  /quit                Exit chat
  Ctrl+C               Cancel current generation
  Ctrl+D               Exit chat

Environment:
  PARLEY_API_KEY       API key (overrides config file)
  PARLEY_MODEL         Model override
  NO_COLOR             Disable colored output

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("parley version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	raw := os.Args[1:]

	remaining, parsed := parseGlobalFlags(raw)

	// No command word defaults to interactive chat.
	if len(remaining) == 0 {
		return CmdChat, parsed
	}

	cmd := strings.ToLower(remaining[0])
	parsed.Raw = remaining[1:]

	switch cmd {
	case "chat":
		return CmdChat, parsed

	case "session", "sessions":
		return CmdSessions, parsed

	case "export":
		return CmdExport, parsed

	case "config":
		return CmdConfig, parsed

	case "version", "-v", "--version":
		return CmdVersion, parsed

	case "help", "-h", "--help":
		return CmdHelp, parsed

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, parsed
	}
}

// parseGlobalFlags extracts flags valid for every command and returns
// the remaining arguments.
func parseGlobalFlags(raw []string) ([]string, Args) {
	var args Args
	var remaining []string

	i := 0
	for i < len(raw) {
		switch raw[i] {
		case "-m", "--model":
			if i+1 < len(raw) {
				args.Model = raw[i+1]
				i += 2
				continue
			}
			i++
		case "-q", "--quiet":
			args.Quiet = true
			i++
		default:
			if v, ok := strings.CutPrefix(raw[i], "--model="); ok {
				args.Model = v
				i++
				continue
			}
			remaining = append(remaining, raw[i])
			i++
		}
	}
	return remaining, args
}
