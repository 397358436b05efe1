// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenRouterURL is the base URL for the OpenRouter API.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// =============================================================================
// OPENROUTER ADAPTER
// =============================================================================

// OpenRouterAdapter streams chat completions from an OpenRouter-compatible
// endpoint. It is the native streaming adapter: output arrives as SSE
// deltas while the model generates.
type OpenRouterAdapter struct {
	apiKey  string
	baseURL string
	name    string
}

// NewOpenRouterAdapter creates an adapter with the given API key.
// An empty key is allowed at construction; Stream fails with
// ErrInvalidCredential before any network call when the key is missing.
func NewOpenRouterAdapter(apiKey string) *OpenRouterAdapter {
	return &OpenRouterAdapter{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultOpenRouterURL,
		name:    "openrouter",
	}
}

// WithBaseURL sets a custom base URL for the API.
func (a *OpenRouterAdapter) WithBaseURL(url string) *OpenRouterAdapter {
	a.baseURL = strings.TrimSuffix(url, "/")
	return a
}

// WithName overrides the adapter display name.
func (a *OpenRouterAdapter) WithName(name string) *OpenRouterAdapter {
	a.name = name
	return a
}

// Name identifies the backend.
func (a *OpenRouterAdapter) Name() string {
	return a.name
}

// Native reports true: this backend delivers output incrementally.
func (a *OpenRouterAdapter) Native() bool {
	return true
}

// IsConfigured returns true if the adapter has an API key.
func (a *OpenRouterAdapter) IsConfigured() bool {
	return a.apiKey != ""
}

// KeyFingerprint returns a SHA-256 fingerprint of the API key for logging.
// SECURITY: never expose key fragments; log the fingerprint instead.
func (a *OpenRouterAdapter) KeyFingerprint() string {
	if a.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(a.apiKey))
	return hex.EncodeToString(h[:4])
}

// chatRequest is the wire body for the completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// chatResponse is the wire body of a blocking completion.
type chatResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream performs a streaming chat completion, decoding SSE deltas into
// cumulative OnToken payloads and exactly one terminal callback.
func (a *OpenRouterAdapter) Stream(ctx context.Context, req Request, cb Callbacks) {
	term := newTerminal(cb)

	if a.apiKey == "" {
		term.fail(ErrInvalidCredential)
		return
	}

	resp, err := a.open(ctx, req, true)
	if err != nil {
		term.fail(err)
		return
	}
	defer resp.Body.Close()

	decoder := NewDecoder(resp.Body)
	var accumulated strings.Builder

	for {
		select {
		case <-ctx.Done():
			term.fail(ErrCancelled)
			return
		default:
		}

		delta, done, err := decoder.Next()
		if err != nil {
			// Cancellation aborts the transport read; anything else is a
			// dropped connection mid-stream.
			if ctx.Err() != nil {
				term.fail(ErrCancelled)
				return
			}
			term.fail(fmt.Errorf("stream read failed: %w", err))
			return
		}

		if delta != "" {
			accumulated.WriteString(delta)
			term.token(accumulated.String())
		}
		if done {
			break
		}
	}

	if accumulated.Len() == 0 {
		term.fail(ErrNoResponse)
		return
	}
	term.complete(accumulated.String())
}

// =============================================================================
// BLOCKING COMPLETION
// =============================================================================

// Complete performs one blocking (non-streaming) completion request and
// returns the full response text. Replay adapters use this to emulate
// streaming for the same endpoint family.
func (a *OpenRouterAdapter) Complete(ctx context.Context, req Request) (string, error) {
	if a.apiKey == "" {
		return "", ErrInvalidCredential
	}

	resp, err := a.open(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrNoResponse
	}
	return parsed.Choices[0].Message.Content, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// open sends the completions request and returns a 200 response, mapping
// every other status into the adapter error taxonomy.
func (a *OpenRouterAdapter) open(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := a.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "parley/0.1.0")

	client := sharedHTTPClient
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
		client = sharedStreamingClient
	}

	a.logRequest(httpReq)
	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	a.logResponse(resp, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		resp.Body.Close()
		return nil, mapStatusError(resp.StatusCode, errBody, resp.Header)
	}

	return resp, nil
}

// logRequest logs an API request without exposing sensitive data.
// Headers and body are never logged; they may carry auth or user content.
func (a *OpenRouterAdapter) logRequest(req *http.Request) {
	log.Printf("%s request: %s %s (key %s)", a.name, req.Method, req.URL.Path, a.KeyFingerprint())
}

// logResponse logs only the status and duration, never the body.
func (a *OpenRouterAdapter) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("%s response: %d (%v)", a.name, resp.StatusCode, duration.Round(time.Millisecond))
}
