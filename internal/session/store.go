// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/provider"
	"github.com/jeranaias/parley-tui/internal/ratelimit"
	"github.com/jeranaias/parley-tui/internal/storage"
)

var (
	// ErrStreamInFlight refuses a send while another stream is active.
	ErrStreamInFlight = errors.New("a response is already streaming")

	// ErrUnknownMessage indicates the named message is not in the active
	// session.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrEmptyMessage refuses a send with no text and no attachments.
	ErrEmptyMessage = errors.New("empty message")
)

// Profile is the per-request configuration snapshot taken at send time.
type Profile struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	SystemPrompt  string
	HasCredential bool
}

// StreamEventKind classifies a stream notification.
type StreamEventKind int

const (
	// StreamToken carries the cumulative text streamed so far.
	StreamToken StreamEventKind = iota
	// StreamDone signals the reply finalized with its full text.
	StreamDone
	// StreamFailed signals the reply became an error bubble.
	StreamFailed
	// StreamCancelled signals the stream was aborted locally. Content
	// holds whatever partial text was kept.
	StreamCancelled
)

// StreamEvent is a UI-facing notification about the in-flight reply.
// Content is the cumulative text for tokens, the full text on done, and
// the human-readable explanation on failure.
type StreamEvent struct {
	Kind      StreamEventKind
	MessageID string
	Content   string
}

// =============================================================================
// STORE
// =============================================================================

// Store is the conversation engine. It owns the session list, the active
// session, and pending attachments, and orchestrates the send pipeline:
// rate limiter, provider adapter, stream mirroring into the placeholder
// assistant message.
//
// All mutations are atomic under the store lock. A generation counter
// stamps each stream; callbacks from a superseded generation are
// discarded, so a cancelled stream can never touch state again.
type Store struct {
	mu sync.Mutex

	sessions []*model.Session
	active   *model.Session
	pending  []model.Attachment

	adapter provider.Adapter
	limiter *ratelimit.Limiter
	syncer  storage.Syncer
	profile func() Profile

	streaming      bool
	streamingMsgID string
	streamingSess  *model.Session
	generation     uint64
	cancelStream   context.CancelFunc

	notify func(StreamEvent)
}

// NewStore creates a store with an empty unregistered draft session. The
// draft joins the session collection when its first message arrives.
func NewStore(adapter provider.Adapter, limiter *ratelimit.Limiter, syncer storage.Syncer, profile func() Profile) *Store {
	if syncer == nil {
		syncer = storage.NoopSyncer{}
	}
	return &Store{
		active:  model.NewSession(""),
		adapter: adapter,
		limiter: limiter,
		syncer:  syncer,
		profile: profile,
	}
}

// LoadHistory pulls persisted sessions from the syncer and activates the
// most recently updated one. With no history the draft stays active.
func (s *Store) LoadHistory() error {
	sessions, err := s.syncer.LoadSessions()
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(sessions) > 0 {
		s.sessions = sessions
		s.active = sessions[0]
	}
	return nil
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// CreateSession allocates a new empty session, makes it active, and clears
// pending attachments. Always succeeds.
func (s *Store) CreateSession(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := model.NewSession(title)
	s.sessions = append(s.sessions, sess)
	s.active = sess
	s.pending = nil

	s.persistLocked(sess)
	return sess.ID
}

// SwitchSession makes the named session active. Unknown ids are a no-op.
func (s *Store) SwitchSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.ID == id {
			s.active = sess
			return
		}
	}
}

// DeleteSession removes the session. If it owned the in-flight stream,
// the stream is aborted first. If it was active, the most recently
// updated survivor becomes active, or a fresh session is created when
// none remain.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()

	idx := -1
	for i, sess := range s.sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}

	// Abort a stream whose owner is going away: its tokens have nowhere
	// to land, and leaving it running would block new sends until the
	// provider finished on its own.
	var streamID string
	aborted := false
	if s.streaming && s.streamingSess != nil && s.streamingSess.ID == id {
		s.generation++
		streamID = s.streamingMsgID
		s.clearStreamLocked()
		aborted = true
	}

	wasActive := s.active != nil && s.active.ID == id
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)

	if err := s.syncer.SessionDeleted(id); err != nil {
		log.Printf("session delete sync failed: %v", err)
	}

	if wasActive {
		if survivor := s.mostRecentLocked(); survivor != nil {
			s.active = survivor
		} else {
			fresh := model.NewSession("")
			s.sessions = append(s.sessions, fresh)
			s.active = fresh
		}
	}
	s.mu.Unlock()

	if aborted {
		s.emit(StreamEvent{Kind: StreamCancelled, MessageID: streamID})
	}
}

// mostRecentLocked returns the most recently updated session, or nil.
// Caller holds s.mu.
func (s *Store) mostRecentLocked() *model.Session {
	var best *model.Session
	for _, sess := range s.sessions {
		if best == nil || sess.UpdatedAt.After(best.UpdatedAt) {
			best = sess
		}
	}
	return best
}

// Sessions returns deep copies of all sessions, most recently updated
// first.
func (s *Store) Sessions() []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].UpdatedAt.After(out[i].UpdatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// ActiveSession returns a deep copy of the active session.
func (s *Store) ActiveSession() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Clone()
}

// ActiveSessionID returns the active session's id.
func (s *Store) ActiveSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.ID
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AddMessage appends to the active session, materializing it in the
// session collection on the first message.
func (s *Store) AddMessage(msg *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addMessageLocked(msg)
	s.persistLocked(s.active)
}

// addMessageLocked appends and materializes. Caller holds s.mu.
func (s *Store) addMessageLocked(msg *model.Message) {
	registered := false
	for _, sess := range s.sessions {
		if sess.ID == s.active.ID {
			registered = true
			break
		}
	}
	if !registered {
		s.sessions = append(s.sessions, s.active)
	}
	s.active.AddMessage(msg)
}

// UpdateMessage merges a patch into the named message in the active
// session. Unknown ids and empty patches are no-ops.
func (s *Store) UpdateMessage(id string, patch model.Patch) {
	if patch.IsZero() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.active.MessageByID(id)
	if msg == nil {
		return
	}
	msg.Apply(patch)
	s.active.Touch()
	s.persistLocked(s.active)
}

// DeleteMessage removes the named message from the active session.
// Neighboring messages are never touched.
func (s *Store) DeleteMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.RemoveMessage(id) {
		s.persistLocked(s.active)
	}
}

// =============================================================================
// SEND PIPELINE
// =============================================================================

// Attach queues validated attachments for the next send.
func (s *Store) Attach(attachments []model.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, attachments...)
}

// PendingAttachments returns a copy of the queued attachments.
func (s *Store) PendingAttachments() []model.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Attachment(nil), s.pending...)
}

// SendMessage creates the user message (consuming pending attachments),
// an empty streaming placeholder, and dispatches the stream. Validation
// failures (in-flight stream, missing credential, local rate limit) are
// returned synchronously; nothing is recorded against the limiter and no
// messages are created.
func (s *Store) SendMessage(text string, attachments []model.Attachment) error {
	s.mu.Lock()

	all := append(append([]model.Attachment(nil), s.pending...), attachments...)
	if text == "" && len(all) == 0 {
		s.mu.Unlock()
		return ErrEmptyMessage
	}

	if err := s.admitLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pending = nil

	s.addMessageLocked(model.NewUserMessage(text, all))
	s.startStreamLocked()
	return nil
}

// Resend streams a new reply over the existing history without adding a
// user message.
func (s *Store) Resend() error {
	s.mu.Lock()

	if s.active.IsEmpty() {
		s.mu.Unlock()
		return ErrEmptyMessage
	}
	if err := s.admitLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.startStreamLocked()
	return nil
}

// RegenerateFrom truncates the conversation to the named message
// (inclusive) and streams a fresh reply from that point.
func (s *Store) RegenerateFrom(id string) error {
	s.mu.Lock()

	if s.active.MessageByID(id) == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	if err := s.admitLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.active.TruncateAfter(id)
	s.startStreamLocked()
	return nil
}

// admitLocked runs the synchronous send checks in order: single-flight,
// credential, local rate limit. Only an admitted send records a request
// against the limiter. Caller holds s.mu.
func (s *Store) admitLocked() error {
	if s.streaming {
		return ErrStreamInFlight
	}
	if !s.profile().HasCredential {
		return provider.ErrInvalidCredential
	}
	if err := s.limiter.Check(); err != nil {
		return err
	}
	s.limiter.AddRequest()
	return nil
}

// startStreamLocked appends the placeholder, marks streaming state, and
// dispatches the adapter on its own goroutine. Caller holds s.mu; the
// lock is released here after state is set.
func (s *Store) startStreamLocked() {
	placeholder := model.NewAssistantMessage()
	s.addMessageLocked(placeholder)

	s.generation++
	gen := s.generation
	s.streaming = true
	s.streamingMsgID = placeholder.ID
	// The stream stays bound to this session: switching the active
	// session mid-flight must not re-home the placeholder.
	s.streamingSess = s.active

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelStream = cancel

	req := s.buildRequestLocked()
	s.persistLocked(s.active)
	s.mu.Unlock()

	go s.adapter.Stream(ctx, req, provider.Callbacks{
		OnToken:    func(cumulative string) { s.onToken(gen, cumulative) },
		OnComplete: func(full string) { s.onComplete(gen, full) },
		OnError:    func(err error) { s.onError(gen, err) },
	})
}

// buildRequestLocked assembles the wire request from the profile and the
// active session's history. The streaming placeholder and prior error
// bubbles are excluded. Caller holds s.mu.
func (s *Store) buildRequestLocked() provider.Request {
	p := s.profile()

	messages := make([]provider.ChatMessage, 0, len(s.active.Messages)+1)
	if p.SystemPrompt != "" {
		messages = append(messages, provider.NewSystemMessage(p.SystemPrompt))
	}
	for _, msg := range s.active.Messages {
		if msg.IsStreaming || msg.IsError {
			continue
		}
		content := msg.Content
		if msg.Role == model.RoleUser {
			content = inlineAttachments(content, msg.Attachments)
		}
		if content == "" {
			continue
		}
		messages = append(messages, provider.ChatMessage{Role: msg.Role.String(), Content: content})
	}

	return provider.Request{
		Model:       p.Model,
		Messages:    messages,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}
}

// inlineAttachments folds textual attachments into the outgoing message
// body. Binary attachments contribute only their name.
func inlineAttachments(content string, attachments []model.Attachment) string {
	for _, att := range attachments {
		if att.IsText() {
			content += fmt.Sprintf("\n\n[attachment %s]\n%s", att.Name, att.Text)
		} else {
			content += fmt.Sprintf("\n\n[attachment %s (%s, %d bytes)]", att.Name, att.MIME, att.Size)
		}
	}
	return content
}

// =============================================================================
// STREAM CALLBACKS
// =============================================================================

// SetNotify registers a listener for stream events. The listener runs
// outside the store lock, so it may call back into the store.
func (s *Store) SetNotify(fn func(StreamEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// emit delivers an event to the listener. Caller must NOT hold s.mu.
func (s *Store) emit(ev StreamEvent) {
	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify(ev)
	}
}

// onToken mirrors the cumulative payload into the placeholder.
func (s *Store) onToken(gen uint64, cumulative string) {
	s.mu.Lock()
	if gen != s.generation || !s.streaming {
		s.mu.Unlock()
		return // superseded stream
	}
	id := s.streamingMsgID
	if msg := s.streamingSess.MessageByID(id); msg != nil {
		msg.SetContent(cumulative)
	}
	s.mu.Unlock()

	s.emit(StreamEvent{Kind: StreamToken, MessageID: id, Content: cumulative})
}

// onComplete finalizes the placeholder with the full response.
func (s *Store) onComplete(gen uint64, full string) {
	s.mu.Lock()
	if gen != s.generation || !s.streaming {
		s.mu.Unlock()
		return
	}
	id := s.streamingMsgID
	owner := s.streamingSess
	if msg := owner.MessageByID(id); msg != nil {
		msg.SetContent(full)
		msg.Finalize()
	}
	s.clearStreamLocked()
	s.persistLocked(owner)
	s.mu.Unlock()

	s.emit(StreamEvent{Kind: StreamDone, MessageID: id, Content: full})
}

// onError replaces the placeholder's text with a human-readable
// explanation and marks it as an error bubble. The failed turn stays in
// the history.
func (s *Store) onError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation || !s.streaming {
		s.mu.Unlock()
		return
	}
	id := s.streamingMsgID
	owner := s.streamingSess
	explained := explainError(err)
	if msg := owner.MessageByID(id); msg != nil {
		msg.Fail(explained)
	}
	s.clearStreamLocked()
	s.persistLocked(owner)
	s.mu.Unlock()

	s.emit(StreamEvent{Kind: StreamFailed, MessageID: id, Content: explained})
}

// CancelStream aborts the in-flight stream. Streaming state is cleared
// synchronously before returning, so a new send is accepted immediately;
// the generation bump discards any late callbacks from the cancelled
// stream. The placeholder keeps its partial text, or is removed when
// nothing arrived yet.
func (s *Store) CancelStream() {
	s.mu.Lock()

	if !s.streaming {
		s.mu.Unlock()
		return
	}
	s.cancelStream()
	s.generation++

	id := s.streamingMsgID
	owner := s.streamingSess
	var partial string
	if msg := owner.MessageByID(id); msg != nil {
		if msg.IsEmpty() {
			owner.RemoveMessage(msg.ID)
		} else {
			msg.Finalize()
			partial = msg.Content
		}
	}
	s.clearStreamLocked()
	s.persistLocked(owner)
	s.mu.Unlock()

	s.emit(StreamEvent{Kind: StreamCancelled, MessageID: id, Content: partial})
}

// IsStreaming reports whether a response is currently in flight.
func (s *Store) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// clearStreamLocked resets the streaming bookkeeping. Caller holds s.mu.
func (s *Store) clearStreamLocked() {
	s.streaming = false
	s.streamingMsgID = ""
	s.streamingSess = nil
	if s.cancelStream != nil {
		s.cancelStream()
		s.cancelStream = nil
	}
}

// persistLocked hands a deep copy to the syncer. Persistence failures are
// logged, never surfaced: losing a save must not break the conversation.
// Caller holds s.mu.
func (s *Store) persistLocked(sess *model.Session) {
	if err := s.syncer.SessionSaved(sess.Clone()); err != nil {
		log.Printf("session save sync failed: %v", err)
	}
}

// =============================================================================
// ERROR PRESENTATION
// =============================================================================

// explainError renders a taxonomy error as the text of an error bubble.
func explainError(err error) string {
	var rlErr *provider.RateLimitError
	var limitErr *ratelimit.Error
	var provErr *provider.ProviderError

	switch {
	case errors.As(err, &rlErr) && rlErr.RetryAfter > 0:
		return fmt.Sprintf("Rate limited by the provider. Try again in %v.", rlErr.RetryAfter.Round(time.Second))
	case errors.As(err, &limitErr):
		return fmt.Sprintf("Sending too fast. Try again in %v.", limitErr.RetryAfter.Round(time.Second))
	case errors.Is(err, provider.ErrRateLimited):
		return "Rate limited by the provider. Try again shortly."
	case errors.Is(err, provider.ErrInvalidCredential):
		return "Invalid or missing API key. Set it with `parley config` or PARLEY_API_KEY."
	case errors.Is(err, provider.ErrProviderUnavailable):
		return "The provider is temporarily unavailable. Try again shortly."
	case errors.Is(err, provider.ErrNoResponse):
		return "The model generated no response. Try again or rephrase."
	case errors.Is(err, provider.ErrCancelled):
		return "Generation stopped."
	case errors.As(err, &provErr):
		return fmt.Sprintf("The request failed (HTTP %d).", provErr.Status)
	default:
		return fmt.Sprintf("Something went wrong: %v.", err)
	}
}
