// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testKey = "sk-or-test-abcdefghijklmnopqrstuvwxyz0123456789"

// recorder captures the callback sequence of one Stream invocation.
type recorder struct {
	tokens    []string
	completes []string
	errors    []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnToken:    func(s string) { r.tokens = append(r.tokens, s) },
		OnComplete: func(s string) { r.completes = append(r.completes, s) },
		OnError:    func(err error) { r.errors = append(r.errors, err) },
	}
}

func (r *recorder) terminalCount() int {
	return len(r.completes) + len(r.errors)
}

// sseHandler writes the given chunks as a completions event stream.
func sseHandler(deltas ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

// =============================================================================
// NATIVE STREAMING TESTS
// =============================================================================

// TestStreamCumulativeTokens verifies OnToken carries cumulative payloads:
// deltas H, e, l, l, o arrive as "H", "He", ..., "Hello" and the terminal
// completion equals the final cumulative payload.
func TestStreamCumulativeTokens(t *testing.T) {
	server := httptest.NewServer(sseHandler("H", "e", "l", "l", "o"))
	defer server.Close()

	adapter := NewOpenRouterAdapter(testKey).WithBaseURL(server.URL)
	rec := &recorder{}
	adapter.Stream(context.Background(), Request{Model: "test"}, rec.callbacks())

	want := []string{"H", "He", "Hel", "Hell", "Hello"}
	if len(rec.tokens) != len(want) {
		t.Fatalf("token count = %d, expected %d (%q)", len(rec.tokens), len(want), rec.tokens)
	}
	for i, w := range want {
		if rec.tokens[i] != w {
			t.Errorf("token[%d] = %q, expected %q", i, rec.tokens[i], w)
		}
	}

	if len(rec.completes) != 1 || rec.completes[0] != "Hello" {
		t.Errorf("completes = %q, expected [Hello]", rec.completes)
	}
	if len(rec.errors) != 0 {
		t.Errorf("unexpected errors: %v", rec.errors)
	}
	if rec.terminalCount() != 1 {
		t.Errorf("terminal callbacks = %d, expected exactly 1", rec.terminalCount())
	}
}

// TestStreamTwoChunkScenario verifies the two-fragment decode scenario end
// to end: two token events and one completion carrying the full text.
func TestStreamTwoChunkScenario(t *testing.T) {
	server := httptest.NewServer(sseHandler("Hi", " there"))
	defer server.Close()

	adapter := NewOpenRouterAdapter(testKey).WithBaseURL(server.URL)
	rec := &recorder{}
	adapter.Stream(context.Background(), Request{Model: "test"}, rec.callbacks())

	if len(rec.tokens) != 2 || rec.tokens[0] != "Hi" || rec.tokens[1] != "Hi there" {
		t.Errorf("tokens = %q, expected [Hi, Hi there]", rec.tokens)
	}
	if len(rec.completes) != 1 || rec.completes[0] != "Hi there" {
		t.Errorf("completes = %q, expected [Hi there]", rec.completes)
	}
}

// TestStreamMissingCredential verifies the adapter fails fast with no
// network call when the key is missing.
func TestStreamMissingCredential(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	adapter := NewOpenRouterAdapter("").WithBaseURL(server.URL)
	rec := &recorder{}
	adapter.Stream(context.Background(), Request{Model: "test"}, rec.callbacks())

	if called {
		t.Error("no network call should be attempted without a credential")
	}
	if len(rec.errors) != 1 || !errors.Is(rec.errors[0], ErrInvalidCredential) {
		t.Errorf("errors = %v, expected [ErrInvalidCredential]", rec.errors)
	}
}

// TestStreamStatusMapping verifies the HTTP status taxonomy.
func TestStreamStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		want       error
	}{
		{name: "unauthorized", status: 401, want: ErrInvalidCredential},
		{name: "throttled", status: 429, retryAfter: "7", want: ErrRateLimited},
		{name: "server error", status: 500, want: ErrProviderUnavailable},
		{name: "bad gateway", status: 502, want: ErrProviderUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.retryAfter != "" {
					w.Header().Set("Retry-After", tc.retryAfter)
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer server.Close()

			adapter := NewOpenRouterAdapter(testKey).WithBaseURL(server.URL)
			rec := &recorder{}
			adapter.Stream(context.Background(), Request{Model: "test"}, rec.callbacks())

			if len(rec.errors) != 1 {
				t.Fatalf("errors = %v, expected exactly 1", rec.errors)
			}
			if !errors.Is(rec.errors[0], tc.want) {
				t.Errorf("error = %v, expected %v", rec.errors[0], tc.want)
			}
			if tc.retryAfter != "" {
				var rlErr *RateLimitError
				if !errors.As(rec.errors[0], &rlErr) || rlErr.RetryAfter != 7*time.Second {
					t.Errorf("expected RateLimitError with 7s wait, got %v", rec.errors[0])
				}
			}
		})
	}
}

// TestStreamGenericFailure verifies other non-2xx statuses surface the
// status code and body.
func TestStreamGenericFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("unknown model"))
	}))
	defer server.Close()

	adapter := NewOpenRouterAdapter(testKey).WithBaseURL(server.URL)
	rec := &recorder{}
	adapter.Stream(context.Background(), Request{Model: "bogus"}, rec.callbacks())

	var pErr *ProviderError
	if len(rec.errors) != 1 || !errors.As(rec.errors[0], &pErr) {
		t.Fatalf("errors = %v, expected ProviderError", rec.errors)
	}
	if pErr.Status != 404 || !strings.Contains(pErr.Message, "unknown model") {
		t.Errorf("ProviderError = %+v", pErr)
	}
}

// TestStreamEmptyOutput verifies a stream ending with no content surfaces
// ErrNoResponse rather than an empty completion.
func TestStreamEmptyOutput(t *testing.T) {
	server := httptest.NewServer(sseHandler())
	defer server.Close()

	adapter := NewOpenRouterAdapter(testKey).WithBaseURL(server.URL)
	rec := &recorder{}
	adapter.Stream(context.Background(), Request{Model: "test"}, rec.callbacks())

	if len(rec.completes) != 0 {
		t.Errorf("unexpected completion: %q", rec.completes)
	}
	if len(rec.errors) != 1 || !errors.Is(rec.errors[0], ErrNoResponse) {
		t.Errorf("errors = %v, expected [ErrNoResponse]", rec.errors)
	}
}

// TestStreamCancellation verifies cancelling mid-stream after one token
// yields no completion and exactly one ErrCancelled.
func TestStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		flusher.Flush()
		<-release // hold the stream open until the client cancels
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	adapter := NewOpenRouterAdapter(testKey).WithBaseURL(server.URL)

	rec := &recorder{}
	cb := rec.callbacks()
	onToken := cb.OnToken
	cb.OnToken = func(s string) {
		onToken(s)
		cancel() // cancel as soon as the first token lands
	}

	adapter.Stream(ctx, Request{Model: "test"}, cb)

	if len(rec.tokens) != 1 || rec.tokens[0] != "first" {
		t.Errorf("tokens = %q, expected [first]", rec.tokens)
	}
	if len(rec.completes) != 0 {
		t.Error("OnComplete must not fire after cancellation")
	}
	if len(rec.errors) != 1 || !errors.Is(rec.errors[0], ErrCancelled) {
		t.Errorf("errors = %v, expected exactly one ErrCancelled", rec.errors)
	}
}

// =============================================================================
// REPLAY ADAPTER TESTS
// =============================================================================

// completerFunc adapts a function to the Completer interface.
type completerFunc func(ctx context.Context, req Request) (string, error)

func (f completerFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// TestReplayPreservesText verifies chunk concatenation reproduces the
// blocking response byte-for-byte and the completion carries the full text.
func TestReplayPreservesText(t *testing.T) {
	const text = "The  quick\nbrown fox jumps over the lazy dog"
	adapter := NewReplayAdapter("canned", completerFunc(func(ctx context.Context, req Request) (string, error) {
		return text, nil
	})).WithChunkWords(2).WithChunksPerSecond(10000)

	rec := &recorder{}
	adapter.Stream(context.Background(), Request{Model: "test"}, rec.callbacks())

	if len(rec.completes) != 1 || rec.completes[0] != text {
		t.Fatalf("completes = %q", rec.completes)
	}
	if len(rec.tokens) == 0 {
		t.Fatal("expected token events during replay")
	}
	if last := rec.tokens[len(rec.tokens)-1]; last != text {
		t.Errorf("final cumulative token = %q, expected full text", last)
	}
	if adapter.Native() {
		t.Error("replay adapter must report non-native streaming")
	}
}

// TestReplayChunkSizes verifies the word budget per chunk.
func TestReplayChunkSizes(t *testing.T) {
	chunks := splitWordChunks("one two three four five", 2)
	want := []string{"one two ", "three four ", "five"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %q, expected %q", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk[%d] = %q, expected %q", i, chunks[i], want[i])
		}
	}
	if got := strings.Join(chunks, ""); got != "one two three four five" {
		t.Errorf("concatenation = %q", got)
	}
}

// TestReplayCancellation verifies a mid-replay cancel stops the replay with
// a single ErrCancelled and no completion.
func TestReplayCancellation(t *testing.T) {
	adapter := NewReplayAdapter("canned", completerFunc(func(ctx context.Context, req Request) (string, error) {
		return strings.Repeat("word ", 200), nil
	})).WithChunkWords(1).WithChunksPerSecond(1000)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	cb := rec.callbacks()
	onToken := cb.OnToken
	cb.OnToken = func(s string) {
		onToken(s)
		if len(rec.tokens) == 3 {
			cancel()
		}
	}

	adapter.Stream(ctx, Request{Model: "test"}, cb)

	if len(rec.completes) != 0 {
		t.Error("OnComplete must not fire after cancellation")
	}
	if len(rec.errors) != 1 || !errors.Is(rec.errors[0], ErrCancelled) {
		t.Errorf("errors = %v, expected exactly one ErrCancelled", rec.errors)
	}
}

// TestReplayPropagatesCompleterErrors verifies upstream failures keep their
// category through the replay wrapper.
func TestReplayPropagatesCompleterErrors(t *testing.T) {
	adapter := NewReplayAdapter("canned", completerFunc(func(ctx context.Context, req Request) (string, error) {
		return "", fmt.Errorf("%w (HTTP 503)", ErrProviderUnavailable)
	}))

	rec := &recorder{}
	adapter.Stream(context.Background(), Request{Model: "test"}, rec.callbacks())

	if len(rec.errors) != 1 || !errors.Is(rec.errors[0], ErrProviderUnavailable) {
		t.Errorf("errors = %v, expected [ErrProviderUnavailable]", rec.errors)
	}
}

// TestReplayEmptyOutput verifies an empty blocking response maps to
// ErrNoResponse.
func TestReplayEmptyOutput(t *testing.T) {
	adapter := NewReplayAdapter("canned", completerFunc(func(ctx context.Context, req Request) (string, error) {
		return "", nil
	}))

	rec := &recorder{}
	adapter.Stream(context.Background(), Request{Model: "test"}, rec.callbacks())

	if len(rec.errors) != 1 || !errors.Is(rec.errors[0], ErrNoResponse) {
		t.Errorf("errors = %v, expected [ErrNoResponse]", rec.errors)
	}
}

// =============================================================================
// BLOCKING COMPLETION TESTS
// =============================================================================

// TestComplete verifies the blocking completion path.
func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"full answer"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	adapter := NewOpenRouterAdapter(testKey).WithBaseURL(server.URL)
	got, err := adapter.Complete(context.Background(), Request{Model: "test"})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got != "full answer" {
		t.Errorf("Complete() = %q", got)
	}
}

// TestKeyFingerprint verifies key logging never exposes the key itself.
func TestKeyFingerprint(t *testing.T) {
	adapter := NewOpenRouterAdapter(testKey)
	fp := adapter.KeyFingerprint()
	if fp == "none" || strings.Contains(testKey, fp) {
		t.Errorf("fingerprint %q should not be derived by substring", fp)
	}
	if NewOpenRouterAdapter("").KeyFingerprint() != "none" {
		t.Error("empty key should fingerprint as none")
	}
}

// TestTerminalGuard verifies at most one terminal callback and no tokens
// after a terminal event.
func TestTerminalGuard(t *testing.T) {
	rec := &recorder{}
	term := newTerminal(rec.callbacks())

	term.token("a")
	term.complete("done")
	term.token("b")
	term.fail(errors.New("late"))
	term.complete("again")

	if len(rec.tokens) != 1 || rec.tokens[0] != "a" {
		t.Errorf("tokens = %q", rec.tokens)
	}
	if rec.terminalCount() != 1 || len(rec.completes) != 1 {
		t.Errorf("terminal callbacks = %d completes=%d", rec.terminalCount(), len(rec.completes))
	}
}
