// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/util"
)

// Column widths of the session table.
const (
	idColWidth      = 12
	timeColWidth    = 16
	countColWidth   = 8
	previewColWidth = 40
)

// =============================================================================
// SESSION TABLE
// =============================================================================

// FormatSessionTable renders sessions as an aligned table: id, last
// update, message count, preview. Widths are display cells, not bytes,
// so CJK titles line up.
func FormatSessionTable(sessions []*model.Session, activeID string) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	rule := strings.Repeat("-", idColWidth+timeColWidth+countColWidth+previewColWidth+5)

	sb.WriteString(rule + "\n")
	sb.WriteString(" " + pad("ID", idColWidth) + " " +
		pad("Updated", timeColWidth) + " " +
		pad("Messages", countColWidth) + " Preview\n")
	sb.WriteString(rule + "\n")

	for _, sess := range sessions {
		marker := " "
		if sess.ID == activeID {
			marker = "*"
		}

		id := sess.ID
		if len(id) > idColWidth {
			id = id[:idColWidth]
		}

		sb.WriteString(marker +
			pad(id, idColWidth) + " " +
			pad(sess.UpdatedAt.Format("2006-01-02 15:04"), timeColWidth) + " " +
			pad(util.IntToStr(sess.MessageCount()), countColWidth) + " " +
			runewidth.Truncate(sess.Preview(), previewColWidth, "...") + "\n")
	}
	return sb.String()
}

// pad right-pads a string to the given display width.
func pad(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, ""), width)
}
