// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/google/uuid"

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// Attachment is a validated file record handed to the engine by the file
// ingestion boundary. Size limits and MIME allow-listing are enforced before
// construction; the engine treats the record as trusted.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`

	// Exactly one of Data or Text is normally populated, depending on
	// whether the source file was binary or textual.
	Data []byte `json:"data,omitempty"`
	Text string `json:"text,omitempty"`

	// Preview is an optional short rendering for display.
	Preview string `json:"preview,omitempty"`
}

// NewAttachment creates an attachment record with a generated ID.
func NewAttachment(name, mime string, size int64) Attachment {
	return Attachment{
		ID:   "att_" + uuid.NewString(),
		Name: name,
		MIME: mime,
		Size: size,
	}
}

// IsText reports whether the attachment carries textual content.
func (a Attachment) IsText() bool {
	return a.Text != ""
}
