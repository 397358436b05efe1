// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"

	"github.com/jeranaias/parley-tui/internal/model"
)

// ErrNotEditable refuses edits on non-user messages.
var ErrNotEditable = fmt.Errorf("only user messages can be edited")

// =============================================================================
// MESSAGE LIFECYCLE
// =============================================================================

// StartEditing flags the named user message as being edited.
func (s *Store) StartEditing(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.active.MessageByID(id)
	if msg == nil {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	if msg.Role != model.RoleUser {
		return ErrNotEditable
	}
	msg.IsEditing = true
	return nil
}

// CancelEditing clears the editing flag without changing anything else.
func (s *Store) CancelEditing(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg := s.active.MessageByID(id); msg != nil {
		msg.IsEditing = false
	}
}

// EditAndResend saves an edit as truncate-and-resend: the edited message
// and every later turn are discarded, then the new text is sent as a
// fresh user message carrying the original attachments. Downstream
// replies are never mutated in place.
func (s *Store) EditAndResend(id, newText string) error {
	s.mu.Lock()

	msg := s.active.MessageByID(id)
	if msg == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	if msg.Role != model.RoleUser {
		s.mu.Unlock()
		return ErrNotEditable
	}
	if newText == "" && len(msg.Attachments) == 0 {
		s.mu.Unlock()
		return ErrEmptyMessage
	}

	if err := s.admitLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	attachments := append([]model.Attachment(nil), msg.Attachments...)
	s.active.TruncateBefore(id)
	s.addMessageLocked(model.NewUserMessage(newText, attachments))
	s.startStreamLocked()
	return nil
}
