// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Default limiter parameters.
const (
	// DefaultWindow is the rolling window over which requests are counted.
	DefaultWindow = 60 * time.Second

	// DefaultCeiling is the maximum number of requests per window.
	DefaultCeiling = 50
)

// =============================================================================
// LIMITER
// =============================================================================

// Limiter is a sliding-window request limiter. It keeps the timestamps of
// admitted requests and prunes those older than the window on every check,
// so over any rolling window at most Ceiling requests are admitted.
type Limiter struct {
	mu sync.Mutex

	window  time.Duration
	ceiling int

	// timestamps of admitted requests, oldest first
	stamps []time.Time

	// now is swappable for tests
	now func() time.Time
}

// New creates a limiter with the given window and ceiling. Non-positive
// arguments fall back to the defaults.
func New(window time.Duration, ceiling int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Limiter{
		window:  window,
		ceiling: ceiling,
		stamps:  make([]time.Time, 0, ceiling),
		now:     time.Now,
	}
}

// NewDefault creates a limiter with the default window and ceiling.
func NewDefault() *Limiter {
	return New(DefaultWindow, DefaultCeiling)
}

// CanMakeRequest prunes expired timestamps and reports whether another
// request fits under the ceiling.
func (l *Limiter) CanMakeRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	return len(l.stamps) < l.ceiling
}

// AddRequest records an outgoing request. Callers consult CanMakeRequest
// immediately before sending; AddRequest itself never refuses.
func (l *Limiter) AddRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	l.stamps = append(l.stamps, l.now())
}

// WaitTime returns how long until the oldest recorded request exits the
// window. Zero when a request can be made right away.
func (l *Limiter) WaitTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	if len(l.stamps) < l.ceiling {
		return 0
	}
	wait := l.window - l.now().Sub(l.stamps[0])
	if wait < 0 {
		return 0
	}
	return wait
}

// Remaining returns how many requests are still admissible in the current
// window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	return l.ceiling - len(l.stamps)
}

// Reset forgets all recorded requests.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = l.stamps[:0]
}

// prune drops timestamps older than the window. Caller holds l.mu.
func (l *Limiter) prune() {
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// Error is returned to callers refused by the limiter. It carries the time
// until the next slot opens so callers may retry after waiting.
type Error struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %v", e.RetryAfter.Round(time.Millisecond))
	}
	return "rate limit exceeded"
}

// Check returns nil when a request is admissible, or an *Error carrying the
// wait time when the ceiling is reached. It does not record the request;
// call AddRequest once the send is actually dispatched.
func (l *Limiter) Check() error {
	if l.CanMakeRequest() {
		return nil
	}
	return &Error{RetryAfter: l.WaitTime()}
}
