// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TitleMaxRunes is the rune budget for auto-generated session titles.
const TitleMaxRunes = 50

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one independent conversation with history and metadata.
// Message insertion order is significant and preserved.
type Session struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages
	Messages []*Message `json:"messages"`
}

// NewSession creates a new empty session with a generated ID.
func NewSession(title string) *Session {
	now := time.Now()
	return &Session{
		ID:        generateSessionID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and refreshes UpdatedAt.
func (s *Session) AddMessage(msg *Message) {
	s.Messages = append(s.Messages, msg)
	s.Touch()
	s.updateTitle()
}

// MessageByID returns a message by ID, or nil if unknown.
func (s *Session) MessageByID(id string) *Message {
	for _, msg := range s.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// MessageIndex returns the index of the message with the given ID, or -1.
func (s *Session) MessageIndex(id string) int {
	for i, msg := range s.Messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// RemoveMessage removes a message by ID. Neighbors are never touched.
func (s *Session) RemoveMessage(id string) bool {
	for i, msg := range s.Messages {
		if msg.ID == id {
			s.Messages = append(s.Messages[:i], s.Messages[i+1:]...)
			s.Touch()
			return true
		}
	}
	return false
}

// TruncateAfter discards every message after the one with the given ID,
// keeping the named message itself. Returns false if the ID is unknown.
func (s *Session) TruncateAfter(id string) bool {
	idx := s.MessageIndex(id)
	if idx < 0 {
		return false
	}
	s.Messages = s.Messages[:idx+1]
	s.Touch()
	return true
}

// TruncateBefore discards the message with the given ID and everything after
// it. Returns false if the ID is unknown.
func (s *Session) TruncateBefore(id string) bool {
	idx := s.MessageIndex(id)
	if idx < 0 {
		return false
	}
	s.Messages = s.Messages[:idx]
	s.Touch()
	return true
}

// LastMessage returns the most recent message, or nil if empty.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// MessageCount returns the number of messages.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// IsEmpty returns true if there are no messages.
func (s *Session) IsEmpty() bool {
	return len(s.Messages) == 0
}

// Touch refreshes the last-update timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (s *Session) updateTitle() {
	if s.Title != "" {
		return
	}
	for _, msg := range s.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			s.Title = previewText(msg.Content, TitleMaxRunes)
			return
		}
	}
}

// DisplayTitle returns the session title or a default.
func (s *Session) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "New Conversation"
}

// Preview returns a short one-line preview of the session.
func (s *Session) Preview() string {
	for _, msg := range s.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return previewText(msg.Content, 80)
		}
	}
	return "Empty conversation"
}

// =============================================================================
// CLONING
// =============================================================================

// Clone creates a deep copy of the session. Used when handing state to the
// persistence collaborator so later mutations cannot race the writer.
func (s *Session) Clone() *Session {
	clone := &Session{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Messages:  make([]*Message, len(s.Messages)),
	}
	for i, msg := range s.Messages {
		msgCopy := *msg
		if len(msg.Attachments) > 0 {
			msgCopy.Attachments = append([]Attachment(nil), msg.Attachments...)
		}
		clone.Messages[i] = &msgCopy
	}
	return clone
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateSessionID creates a unique session ID.
func generateSessionID() string {
	return "sess_" + uuid.NewString()
}

// previewText flattens newlines and truncates to maxLen runes, appending
// "..." when truncated.
func previewText(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
