// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for the parley CLI.
//
// CLI: Comprehensive help and examples for all commands
// USABILITY: Markdown rendering and history for better CLI experience
//
// Handles the "parley chat" command (also the default command), an
// interactive REPL over the session store.
//
// Examples:
//   parley                            Start interactive chat
//   parley chat --model openai/gpt-4o Use a specific model
//   parley -q chat                    Minimal output
//
// Interactive Commands (during chat):
//   /help               Show available commands
//   /new [title]        Start a new session
//   /sessions           List sessions
//   /switch <id>        Switch to another session
//   /attach <path>...   Attach files to the next message
//   /retry              Regenerate the last reply
//   /edit <text>        Edit your last message and resend
//   /model [name]       Show or switch model
//   /export [format]    Export the current session
//   /history            Show conversation history
//   /quit               Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/parley-tui/internal/attach"
	"github.com/jeranaias/parley-tui/internal/config"
	"github.com/jeranaias/parley-tui/internal/export"
	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/session"
	"github.com/jeranaias/parley-tui/internal/util"
)

var welcomeStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("141")). // Purple
	Bold(true)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI wraps liner to provide readline-like input with persistent
// history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates the input handler. History lives in the config
// directory, falling back to the system temp dir.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile := filepath.Join(os.TempDir(), "parley_history")
	if dir, err := config.Dir(); err == nil {
		historyFile = filepath.Join(dir, "chat_history")
	}

	return &ChatCLI{line: line, historyFile: historyFile}
}

// LoadHistory reads past input history if it exists.
func (c *ChatCLI) LoadHistory() {
	f, err := os.Open(c.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.ReadHistory(f)
}

// ReadInput prompts for a line with history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureDir(); err != nil {
		return
	}
	// SECURITY: history may contain sensitive prompts, 0600 only
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// chatREPL holds the state of one interactive chat run.
type chatREPL struct {
	app       *App
	input     *ChatCLI
	args      Args
	validator *attach.Validator

	// Stream events forwarded from the store listener.
	events chan session.StreamEvent

	// Bytes of the in-flight reply already echoed to stdout.
	printed int
}

// HandleChat runs the interactive chat REPL.
func HandleChat(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	repl := &chatREPL{
		app:       app,
		input:     NewChatCLI(),
		args:      args,
		validator: attach.NewValidator(),
		events:    make(chan session.StreamEvent, 256),
	}
	defer repl.input.Close()
	repl.input.LoadHistory()

	app.Store.SetNotify(func(ev session.StreamEvent) {
		repl.events <- ev
	})

	// Live config reload. A changed API key needs a restart because the
	// adapter binds its key at startup.
	app.Config.OnChange(func(s config.Settings) {
		fmt.Fprintln(os.Stderr, DimStyle.Render("[Config reloaded]"))
	})
	if err := app.Config.Watch(); err != nil && !args.Quiet {
		fmt.Fprintf(os.Stderr, "%s config watch unavailable: %v\n", WarningStyle.Render("[Warning]"), err)
	}

	if !args.Quiet {
		repl.printWelcome()
	}

	// Ctrl+C during generation cancels the stream. At the prompt liner
	// owns the terminal and reports ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			app.Store.CancelStream()
		}
	}()

	for {
		input, err := repl.input.ReadInput(PromptStyle.Render("parley> "))
		if err != nil {
			// Ctrl+C or Ctrl+D at the prompt exits gracefully.
			fmt.Println()
			if err != liner.ErrPromptAborted && !errors.Is(err, io.EOF) {
				fmt.Fprintln(os.Stderr, ErrorStyle.Render("[Error]"), err)
			}
			repl.printGoodbye()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := repl.handleSlashCommand(input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				repl.printGoodbye()
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			repl.printGoodbye()
			return nil
		}

		repl.drainEvents()
		if err := repl.app.Store.SendMessage(input, nil); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			continue
		}
		repl.awaitReply()
	}
}

// =============================================================================
// STREAM DISPLAY
// =============================================================================

// awaitReply blocks until the in-flight reply reaches a terminal event,
// echoing tokens as they arrive. On a TTY the completed reply is
// rendered as markdown instead of streamed raw, so formatting survives.
func (r *chatREPL) awaitReply() {
	r.printed = 0
	useMarkdown := IsStdoutTTY()
	fmt.Println()

	for ev := range r.events {
		switch ev.Kind {
		case session.StreamToken:
			if !useMarkdown {
				r.echo(ev.Content)
			}

		case session.StreamDone:
			if useMarkdown {
				displayResponse(ev.Content)
			} else {
				r.echo(ev.Content)
			}
			fmt.Println()
			fmt.Println()
			return

		case session.StreamFailed:
			if r.printed > 0 {
				fmt.Println()
			}
			fmt.Fprintf(os.Stderr, "%s %s\n\n", ErrorStyle.Render("[Error]"), ev.Content)
			return

		case session.StreamCancelled:
			if r.printed > 0 {
				fmt.Println()
			}
			fmt.Fprintf(os.Stderr, "%s\n\n", WarningStyle.Render("[Cancelled]"))
			return
		}
	}
}

// echo prints the unseen suffix of the cumulative payload.
func (r *chatREPL) echo(cumulative string) {
	if len(cumulative) > r.printed {
		fmt.Print(cumulative[r.printed:])
		r.printed = len(cumulative)
	}
}

// drainEvents discards stale events left over from a superseded stream.
func (r *chatREPL) drainEvents() {
	for {
		select {
		case <-r.events:
		default:
			return
		}
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (keepGoing, error) where keepGoing=false means exit.
func (r *chatREPL) handleSlashCommand(cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		r.printHelp()
		return true, nil

	case "/new", "/n":
		r.app.Store.CreateSession(strings.Join(args, " "))
		fmt.Println(InfoStyle.Render("[New conversation]"))
		return true, nil

	case "/sessions", "/ls":
		fmt.Print(export.FormatSessionTable(r.app.Store.Sessions(), r.app.Store.ActiveSessionID()))
		return true, nil

	case "/switch", "/sw":
		return true, r.switchSession(args)

	case "/attach", "/a":
		return true, r.attachFiles(args)

	case "/retry", "/r":
		r.drainEvents()
		if err := r.app.Store.Resend(); err != nil {
			return true, err
		}
		r.awaitReply()
		return true, nil

	case "/edit", "/e":
		return true, r.editLastMessage(strings.Join(args, " "))

	case "/model", "/m":
		return true, r.modelCommand(args)

	case "/export":
		return true, r.exportSession(args)

	case "/history":
		r.printHistory()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// switchSession activates a session by ID or unique ID prefix.
func (r *chatREPL) switchSession(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /switch <session-id>")
	}

	prefix := args[0]
	var match *model.Session
	for _, sess := range r.app.Store.Sessions() {
		if strings.HasPrefix(sess.ID, prefix) {
			if match != nil {
				return fmt.Errorf("ambiguous session id: %s", prefix)
			}
			match = sess
		}
	}
	if match == nil {
		return fmt.Errorf("no session matching %q", prefix)
	}

	r.app.Store.SwitchSession(match.ID)
	fmt.Printf("%s %s (%d messages)\n",
		InfoStyle.Render("[Switched]"),
		ValueStyle.Render(match.DisplayTitle()),
		match.MessageCount())
	return nil
}

// attachFiles validates and stages files for the next message.
func (r *chatREPL) attachFiles(paths []string) error {
	if len(paths) == 0 {
		pending := r.app.Store.PendingAttachments()
		if len(pending) == 0 {
			fmt.Println(DimStyle.Render("No pending attachments."))
			return nil
		}
		for _, att := range pending {
			fmt.Printf("  %s (%s, %d bytes)\n", att.Name, att.MIME, att.Size)
		}
		return nil
	}

	attachments, err := r.validator.IngestBatch(paths)
	if err != nil {
		return err
	}
	r.app.Store.Attach(attachments)
	for _, att := range attachments {
		fmt.Printf("%s %s (%s, %d bytes)\n",
			SuccessStyle.Render("[Attached]"), att.Name, att.MIME, att.Size)
	}
	return nil
}

// editLastMessage rewrites the most recent user message and resends.
func (r *chatREPL) editLastMessage(text string) error {
	if text == "" {
		return fmt.Errorf("usage: /edit <new message text>")
	}

	sess := r.app.Store.ActiveSession()
	var id string
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == model.RoleUser {
			id = sess.Messages[i].ID
			break
		}
	}
	if id == "" {
		return fmt.Errorf("no message to edit")
	}

	r.drainEvents()
	if err := r.app.Store.EditAndResend(id, text); err != nil {
		return err
	}
	r.awaitReply()
	return nil
}

// modelCommand shows or switches the configured model.
func (r *chatREPL) modelCommand(args []string) error {
	if len(args) == 0 {
		fmt.Printf("%s %s\n",
			InfoStyle.Render("[Model]"),
			ValueStyle.Render(r.currentModel()))
		return nil
	}
	name := args[0]
	if err := r.app.Config.Update(func(s *config.Settings) { s.Model = name }); err != nil {
		return err
	}
	fmt.Printf("%s Switched to model: %s\n", SuccessStyle.Render("[OK]"), name)
	return nil
}

// exportSession writes the active conversation to a file in the
// current directory.
func (r *chatREPL) exportSession(args []string) error {
	format := "markdown"
	if len(args) > 0 {
		format = args[0]
	}
	exporter, err := export.ForFormat(format, nil)
	if err != nil {
		return err
	}
	path, err := export.ToFile(r.app.Store.ActiveSession(), exporter, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", SuccessStyle.Render("[Exported]"), path)
	return nil
}

// currentModel resolves the model in effect for this run.
func (r *chatREPL) currentModel() string {
	if r.args.Model != "" {
		return r.args.Model
	}
	return r.app.Config.Snapshot().Model
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func (r *chatREPL) printWelcome() {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("parley interactive chat"))
	fmt.Println(DimStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n", LabelStyle.Render("Model:"), ValueStyle.Render(r.currentModel()))

	if r.app.Adapter.IsConfigured() {
		fmt.Printf("%s %s\n", LabelStyle.Render("API key:"),
			ValueStyle.Render(r.app.Adapter.KeyFingerprint()))
	} else {
		fmt.Printf("%s %s\n", LabelStyle.Render("API key:"),
			WarningStyle.Render("not set (set PARLEY_API_KEY or run `parley config set api_key ...`)"))
	}

	if sess := r.app.Store.ActiveSession(); !sess.IsEmpty() {
		fmt.Printf("%s %s (%d messages)\n", LabelStyle.Render("Session:"),
			ValueStyle.Render(sess.DisplayTitle()), sess.MessageCount())
	}

	fmt.Println()
	fmt.Println(DimStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

// printHelp prints available commands.
func (r *chatREPL) printHelp() {
	fmt.Println()
	fmt.Println(TitleStyle.Render("Available Commands"))
	fmt.Println(DimStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/new [title]", "Start a new session"},
		{"/sessions, /ls", "List sessions"},
		{"/switch <id>", "Switch to another session"},
		{"/attach <path>", "Attach files to the next message"},
		{"/retry, /r", "Regenerate the last reply"},
		{"/edit <text>", "Edit your last message and resend"},
		{"/model [name]", "Show or switch model"},
		{"/export [fmt]", "Export the conversation (text, md, json)"},
		{"/history", "Show conversation history"},
		{"/quit, /q", "Exit chat"},
	}
	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			ValueStyle.Render(fmt.Sprintf("%-16s", c.cmd)),
			DimStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(DimStyle.Render("Tip: Ctrl+C cancels current generation, Ctrl+D exits"))
	fmt.Println()
}

// printHistory prints the conversation so far, one line per turn.
func (r *chatREPL) printHistory() {
	sess := r.app.Store.ActiveSession()
	if sess.IsEmpty() {
		fmt.Println(DimStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	fmt.Println(TitleStyle.Render(sess.DisplayTitle()))
	fmt.Println(DimStyle.Render(strings.Repeat("─", 25)))

	for i, msg := range sess.Messages {
		label := msg.Role.DisplayName()
		if msg.IsError {
			label = ErrorStyle.Render(label)
		} else if msg.Role == model.RoleUser {
			label = InfoStyle.Render(label)
		} else {
			label = ValueStyle.Render(label)
		}

		content := util.TruncateRunes(strings.ReplaceAll(msg.Content, "\n", " "), 100)
		fmt.Printf("  %d. %s: %s\n", i+1, label, content)
	}
	fmt.Println()
}

// printGoodbye prints the exit line.
func (r *chatREPL) printGoodbye() {
	if !r.args.Quiet {
		fmt.Println(DimStyle.Render("Goodbye!"))
	}
}
