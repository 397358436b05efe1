// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Configuration constants shared by all HTTP-backed adapters.
const (
	// DefaultTimeout is the default timeout for blocking API requests.
	DefaultTimeout = 60 * time.Second

	// MaxErrorBodySize caps how much of an error response body is read.
	MaxErrorBodySize = 64 * 1024
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client for blocking requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests. No client
	// timeout: stream lifetime is controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage is one turn of the prior conversation as sent on the wire.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// NewUserMessage creates a user wire message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant wire message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// NewSystemMessage creates a system wire message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// Request describes one completion request: the ordered prior conversation
// (system prompt + history + new user turn) plus generation parameters.
type Request struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// =============================================================================
// CALLBACKS
// =============================================================================

// Callbacks receives streaming progress. OnToken carries the cumulative text
// so far (not the delta), so the caller can always assign the payload
// directly without concatenating. Exactly one of OnComplete or OnError fires
// per Stream invocation.
type Callbacks struct {
	OnToken    func(cumulative string)
	OnComplete func(full string)
	OnError    func(err error)
}

// Adapter is the integration layer for one model-serving backend.
type Adapter interface {
	// Name identifies the backend for logging and display.
	Name() string

	// Native reports whether the backend delivers output incrementally.
	// Replay adapters return false: a mid-stream cancellation there stops
	// only the local replay, not provider-side compute.
	Native() bool

	// Stream sends the request and reports progress through cb. It blocks
	// until the terminal callback has fired. Cancelling ctx aborts the
	// transport and yields a single OnError(ErrCancelled).
	Stream(ctx context.Context, req Request, cb Callbacks)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidCredential indicates a missing, malformed, or rejected API
	// key. Fatal for the attempt; never retried.
	ErrInvalidCredential = errors.New("invalid or missing API credential")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrProviderUnavailable indicates a server-side failure (5xx).
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrCancelled indicates a user-initiated abort.
	ErrCancelled = errors.New("cancelled")

	// ErrNoResponse indicates the stream completed with empty output.
	ErrNoResponse = errors.New("no response generated")
)

// RateLimitError is a throttling response carrying the suggested wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by provider, retry after %v", e.RetryAfter)
	}
	return "rate limited by provider"
}

// Is allows RateLimitError to match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// ProviderError is a non-2xx response outside the mapped categories. It
// carries the status code and response body for diagnosis.
type ProviderError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider request failed (HTTP %d): %s", e.Status, e.Message)
}

// mapStatusError converts an HTTP error response into the adapter error
// taxonomy: 401 invalid credential, 429 throttled, 5xx unavailable,
// anything else a generic ProviderError.
func mapStatusError(status int, body []byte, header http.Header) error {
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w (HTTP 401)", ErrInvalidCredential)
	case status == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(header)}
	case status >= 500:
		return fmt.Errorf("%w (HTTP %d)", ErrProviderUnavailable, status)
	default:
		return &ProviderError{Status: status, Message: string(body)}
	}
}

// parseRetryAfter reads a Retry-After header as seconds or an HTTP date.
func parseRetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		return time.Until(t)
	}
	return 0
}

// =============================================================================
// TERMINAL GUARD
// =============================================================================

// terminal enforces the callback contract: at most one terminal callback,
// and no token callbacks after it. Adapters route every callback through it.
type terminal struct {
	cb    Callbacks
	fired bool
}

func newTerminal(cb Callbacks) *terminal {
	return &terminal{cb: cb}
}

// token forwards a cumulative payload unless a terminal callback has fired.
func (t *terminal) token(cumulative string) {
	if t.fired || t.cb.OnToken == nil {
		return
	}
	t.cb.OnToken(cumulative)
}

// complete fires OnComplete once.
func (t *terminal) complete(full string) {
	if t.fired {
		return
	}
	t.fired = true
	if t.cb.OnComplete != nil {
		t.cb.OnComplete(full)
	}
}

// fail fires OnError once. Context cancellation collapses to ErrCancelled.
func (t *terminal) fail(err error) {
	if t.fired {
		return
	}
	t.fired = true
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = ErrCancelled
	}
	if t.cb.OnError != nil {
		t.cb.OnError(err)
	}
}
