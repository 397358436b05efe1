// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/jeranaias/parley-tui/internal/model"
)

// =============================================================================
// PLAIN TEXT EXPORTER
// =============================================================================

// TextExporter renders a session as plain text: role-labelled turns
// separated by blank lines, with no markup of any kind.
type TextExporter struct {
	options *Options
}

// NewTextExporter creates a plain text exporter.
func NewTextExporter(opts *Options) *TextExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &TextExporter{options: opts}
}

// Export renders the session as plain text.
func (e *TextExporter) Export(sess *model.Session) ([]byte, error) {
	if err := validate(sess); err != nil {
		return nil, err
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString(sess.DisplayTitle() + "\n")
		sb.WriteString(strings.Repeat("=", len(sess.DisplayTitle())) + "\n")
		sb.WriteString(fmt.Sprintf("Created: %s\n", formatTimestamp(sess.CreatedAt)))
		sb.WriteString(fmt.Sprintf("Messages: %d\n\n", sess.MessageCount()))
	}

	for i, msg := range sess.Messages {
		label := msg.Role.DisplayName()
		if e.options.IncludeTimestamps {
			label += " [" + formatShortTimestamp(msg.CreatedAt) + "]"
		}
		sb.WriteString(label + ":\n")
		sb.WriteString(msg.Content + "\n")
		for _, att := range msg.Attachments {
			sb.WriteString(fmt.Sprintf("(attachment: %s, %s, %d bytes)\n", att.Name, att.MIME, att.Size))
		}
		if i < len(sess.Messages)-1 {
			sb.WriteString("\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for plain text.
func (e *TextExporter) FileExtension() string {
	return ".txt"
}

// MimeType returns the MIME type for plain text.
func (e *TextExporter) MimeType() string {
	return "text/plain"
}
