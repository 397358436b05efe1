// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/time/rate"
)

// Replay pacing defaults.
const (
	// DefaultChunkWords is how many words each replayed chunk carries.
	DefaultChunkWords = 3

	// DefaultChunksPerSecond paces the local replay so the output feels
	// like live generation.
	DefaultChunksPerSecond = 30
)

// =============================================================================
// REPLAY ADAPTER
// =============================================================================

// Completer is a backend that can only answer with a full response.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ReplayAdapter emulates streaming for backends without native incremental
// delivery: one blocking completion request, then the result replayed in
// fixed-size word chunks with a paced delay between chunks, preserving the
// same callback contract as native adapters.
//
// Native reports false. A mid-replay cancellation stops only the local
// replay; provider-side compute already finished when replay began.
type ReplayAdapter struct {
	completer  Completer
	name       string
	chunkWords int
	pace       *rate.Limiter
}

// NewReplayAdapter wraps a blocking completer in the streaming contract.
func NewReplayAdapter(name string, completer Completer) *ReplayAdapter {
	return &ReplayAdapter{
		completer:  completer,
		name:       name,
		chunkWords: DefaultChunkWords,
		pace:       rate.NewLimiter(rate.Limit(DefaultChunksPerSecond), 1),
	}
}

// WithChunkWords sets the words-per-chunk size.
func (a *ReplayAdapter) WithChunkWords(n int) *ReplayAdapter {
	if n > 0 {
		a.chunkWords = n
	}
	return a
}

// WithChunksPerSecond sets the replay pacing.
func (a *ReplayAdapter) WithChunksPerSecond(n float64) *ReplayAdapter {
	if n > 0 {
		a.pace = rate.NewLimiter(rate.Limit(n), 1)
	}
	return a
}

// Name identifies the backend.
func (a *ReplayAdapter) Name() string {
	return a.name
}

// Native reports false: streaming is emulated by local replay.
func (a *ReplayAdapter) Native() bool {
	return false
}

// Stream performs the blocking request, then replays the result in word
// chunks. Callback contract matches the native adapters: cumulative
// OnToken payloads, exactly one terminal callback.
func (a *ReplayAdapter) Stream(ctx context.Context, req Request, cb Callbacks) {
	term := newTerminal(cb)

	full, err := a.completer.Complete(ctx, req)
	if err != nil {
		term.fail(err)
		return
	}
	if full == "" {
		term.fail(ErrNoResponse)
		return
	}

	chunks := splitWordChunks(full, a.chunkWords)
	var replayed strings.Builder

	for i, chunk := range chunks {
		// Skip the delay before the first chunk: the user already waited
		// for the whole blocking request.
		if i > 0 {
			if err := a.pace.Wait(ctx); err != nil {
				term.fail(ErrCancelled)
				return
			}
		}
		select {
		case <-ctx.Done():
			term.fail(ErrCancelled)
			return
		default:
		}

		replayed.WriteString(chunk)
		term.token(replayed.String())
	}

	term.complete(full)
}

// =============================================================================
// WORD CHUNKING
// =============================================================================

// splitWordChunks splits text into substrings of roughly n words each.
// The pieces are cut at word boundaries of the original text, so their
// concatenation reproduces it byte-for-byte, whitespace included.
func splitWordChunks(text string, n int) []string {
	if text == "" {
		return nil
	}
	if n <= 0 {
		n = 1
	}

	var chunks []string
	start := 0
	words := 0
	inWord := false

	for i, r := range text {
		isSpace := unicode.IsSpace(r)
		if !isSpace && !inWord {
			// Entering a word.
			if words == n {
				chunks = append(chunks, text[start:i])
				start = i
				words = 0
			}
			words++
		}
		inWord = !isSpace
	}
	chunks = append(chunks, text[start:])
	return chunks
}
