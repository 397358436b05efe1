// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Content grows while a response streams in and is final afterwards.
	Content string `json:"content"`

	// State flags
	IsStreaming bool `json:"-"`
	IsError     bool `json:"is_error,omitempty"`
	IsEditing   bool `json:"-"`

	// Attachments carried with a user message (validated upstream).
	Attachments []Attachment `json:"attachments,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a new user message with optional attachments.
func NewUserMessage(content string, attachments []Attachment) *Message {
	msg := NewMessage(RoleUser, content)
	msg.Attachments = attachments
	return msg
}

// NewAssistantMessage creates an empty assistant placeholder in streaming
// state. Content is filled in by the stream and finalized exactly once.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          generateMessageID(),
		Role:        RoleAssistant,
		CreatedAt:   time.Now(),
		IsStreaming: true,
	}
}

// =============================================================================
// PATCH TYPE
// =============================================================================

// Patch is a partial update to a message. Nil fields are left untouched,
// so applying the zero Patch is a no-op.
type Patch struct {
	Content     *string
	IsStreaming *bool
	IsError     *bool
	IsEditing   *bool
}

// Apply merges the patch into the message.
func (m *Message) Apply(p Patch) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.IsStreaming != nil {
		m.IsStreaming = *p.IsStreaming
	}
	if p.IsError != nil {
		m.IsError = *p.IsError
	}
	if p.IsEditing != nil {
		m.IsEditing = *p.IsEditing
	}
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Content == nil && p.IsStreaming == nil && p.IsError == nil && p.IsEditing == nil
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// SetContent replaces the message text. Streaming callers pass the latest
// cumulative payload, so no concatenation happens here.
func (m *Message) SetContent(text string) {
	m.Content = text
}

// Finalize marks the end of streaming. Safe to call on a non-streaming
// message; content is finalized at most once.
func (m *Message) Finalize() {
	m.IsStreaming = false
}

// Fail replaces the content with a human-readable explanation and marks the
// message as an error bubble. The failed turn stays in the history.
func (m *Message) Fail(explanation string) {
	m.Content = explanation
	m.IsError = true
	m.IsStreaming = false
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Preview returns a truncated, single-line preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	return previewText(m.Content, maxLen)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateMessageID creates a unique message ID.
func generateMessageID() string {
	return "msg_" + uuid.NewString()
}
