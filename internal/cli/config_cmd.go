// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration command handler.
//
// Command: config
// Short:   Show and change parley settings
//
// Examples:
//   parley config                              Show current settings
//   parley config set model openai/gpt-4o      Change the model
//   parley config set temperature 0.9          Change sampling temperature
//   parley config set api_key sk-or-...        Store the API key
//   parley config path                         Print config file location

package cli

import (
	"fmt"
	"strconv"

	"github.com/jeranaias/parley-tui/internal/config"
)

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	parser := NewArgParser(args.Raw)

	switch parser.Subcommand() {
	case "", "show":
		return showConfig()

	case "set":
		key := parser.Positional(1)
		value := parser.Positional(2)
		if key == "" || value == "" {
			return fmt.Errorf("usage: parley config set KEY VALUE")
		}
		return setConfig(key, value)

	case "path":
		path, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil

	default:
		return fmt.Errorf("unknown config subcommand: %s", parser.Subcommand())
	}
}

// showConfig prints current settings. The API key is never echoed.
func showConfig() error {
	s, err := config.Load()
	if err != nil {
		return err
	}

	keyStatus := WarningStyle.Render("not set")
	if s.HasCredential() {
		// SECURITY: never print the credential itself
		keyStatus = SuccessStyle.Render("set")
	}

	fmt.Println(TitleStyle.Render("parley configuration"))
	fmt.Printf("  %s %s\n", LabelStyle.Render("api_key:"), keyStatus)
	fmt.Printf("  %s %s\n", LabelStyle.Render("model:"), ValueStyle.Render(s.Model))
	fmt.Printf("  %s %s\n", LabelStyle.Render("max_tokens:"), ValueStyle.Render(strconv.Itoa(s.MaxTokens)))
	fmt.Printf("  %s %s\n", LabelStyle.Render("temperature:"), ValueStyle.Render(strconv.FormatFloat(s.Temperature, 'g', -1, 64)))
	fmt.Printf("  %s %s\n", LabelStyle.Render("system_prompt:"), ValueStyle.Render(s.SystemPrompt))
	fmt.Printf("  %s %s\n", LabelStyle.Render("theme:"), ValueStyle.Render(s.Theme))
	fmt.Printf("  %s %s\n", LabelStyle.Render("voice_enabled:"), ValueStyle.Render(strconv.FormatBool(s.VoiceEnabled)))
	fmt.Printf("  %s %s\n", LabelStyle.Render("auto_speak:"), ValueStyle.Render(strconv.FormatBool(s.AutoSpeak)))
	return nil
}

// setConfig updates one setting, clamps, and saves atomically. The file
// is loaded without env overrides so PARLEY_* values are not baked in.
func setConfig(key, value string) error {
	s, err := config.LoadFileOnly()
	if err != nil {
		return err
	}

	switch key {
	case "api_key":
		s.APIKey = value
	case "model":
		s.Model = value
	case "max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_tokens must be an integer: %w", err)
		}
		s.MaxTokens = n
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("temperature must be a number: %w", err)
		}
		s.Temperature = f
	case "system_prompt":
		s.SystemPrompt = value
	case "theme":
		s.Theme = value
	case "voice_enabled":
		b, err := ParseBoolString(value)
		if err != nil {
			return err
		}
		s.VoiceEnabled = b
	case "auto_speak":
		b, err := ParseBoolString(value)
		if err != nil {
			return err
		}
		s.AutoSpeak = b
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}

	s.Clamp()
	if err := config.Save(s); err != nil {
		return err
	}
	fmt.Printf("%s %s updated\n", SuccessStyle.Render("[OK]"), key)
	return nil
}
