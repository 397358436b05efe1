// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley-tui/internal/model"
)

func TestEditAndResend(t *testing.T) {
	adapter := &fakeAdapter{reply: "old answer"}
	store := newTestStore(adapter)

	require.NoError(t, store.SendMessage("original question", nil))
	waitIdle(t, store)
	require.NoError(t, store.SendMessage("followup", nil))
	waitIdle(t, store)

	sess := store.ActiveSession()
	require.Equal(t, 4, sess.MessageCount())
	first := sess.Messages[0]

	adapter.mu.Lock()
	adapter.reply = "new answer"
	adapter.mu.Unlock()

	require.NoError(t, store.EditAndResend(first.ID, "revised question"))
	waitIdle(t, store)

	// The edited turn and everything downstream are replaced, never
	// mutated in place.
	edited := store.ActiveSession()
	require.Equal(t, 2, edited.MessageCount())
	assert.Equal(t, "revised question", edited.Messages[0].Content)
	assert.NotEqual(t, first.ID, edited.Messages[0].ID)
	assert.Equal(t, "new answer", edited.Messages[1].Content)

	req := adapter.lastRequest(t)
	for _, msg := range req.Messages {
		assert.NotEqual(t, "original question", msg.Content)
		assert.NotEqual(t, "followup", msg.Content)
	}
}

func TestEditAndResendKeepsAttachments(t *testing.T) {
	adapter := &fakeAdapter{reply: "noted"}
	store := newTestStore(adapter)

	atts := []model.Attachment{{ID: "att_1", Name: "spec.txt", MIME: "text/plain", Size: 4, Text: "spec"}}
	require.NoError(t, store.SendMessage("see file", atts))
	waitIdle(t, store)

	id := store.ActiveSession().Messages[0].ID
	require.NoError(t, store.EditAndResend(id, "see file again"))
	waitIdle(t, store)

	edited := store.ActiveSession().Messages[0]
	require.Len(t, edited.Attachments, 1)
	assert.Equal(t, "spec.txt", edited.Attachments[0].Name)
}

func TestEditAssistantMessageRefused(t *testing.T) {
	store := newTestStore(&fakeAdapter{reply: "the answer"})

	require.NoError(t, store.SendMessage("q", nil))
	waitIdle(t, store)

	replyID := store.ActiveSession().Messages[1].ID
	assert.True(t, errors.Is(store.EditAndResend(replyID, "tamper"), ErrNotEditable))
	assert.True(t, errors.Is(store.StartEditing(replyID), ErrNotEditable))
}

func TestEditUnknownMessage(t *testing.T) {
	store := newTestStore(&fakeAdapter{reply: "x"})
	assert.True(t, errors.Is(store.EditAndResend("msg_nope", "text"), ErrUnknownMessage))
}

func TestEditingFlagLifecycle(t *testing.T) {
	store := newTestStore(&fakeAdapter{reply: "x"})
	store.AddMessage(model.NewUserMessage("draft", nil))
	id := store.ActiveSession().Messages[0].ID

	require.NoError(t, store.StartEditing(id))
	assert.True(t, store.ActiveSession().Messages[0].IsEditing)

	store.CancelEditing(id)
	assert.False(t, store.ActiveSession().Messages[0].IsEditing)
	assert.Equal(t, "draft", store.ActiveSession().Messages[0].Content)
}

func TestEditWhileStreamingRefused(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	adapter := &fakeAdapter{reply: "slow", hold: hold}
	store := newTestStore(adapter)

	require.NoError(t, store.SendMessage("q", nil))
	waitForContent(t, store)

	id := store.ActiveSession().Messages[0].ID
	assert.True(t, errors.Is(store.EditAndResend(id, "new"), ErrStreamInFlight))
}
