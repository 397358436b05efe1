// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"errors"
	"testing"
	"time"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestLimiter(window time.Duration, ceiling int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := New(window, ceiling)
	l.now = clock.now
	return l, clock
}

// TestCeilingEnforced verifies that with a ceiling of 2, the third
// back-to-back request is refused with a positive wait time.
func TestCeilingEnforced(t *testing.T) {
	l, _ := newTestLimiter(60*time.Second, 2)

	for i := 0; i < 2; i++ {
		if !l.CanMakeRequest() {
			t.Fatalf("request %d should be admitted", i+1)
		}
		l.AddRequest()
	}

	if l.CanMakeRequest() {
		t.Error("third request should be refused")
	}
	if wait := l.WaitTime(); wait <= 0 {
		t.Errorf("wait time = %v, expected positive", wait)
	}

	err := l.Check()
	var rlErr *Error
	if !errors.As(err, &rlErr) {
		t.Fatalf("Check() = %v, expected *ratelimit.Error", err)
	}
	if rlErr.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, expected positive", rlErr.RetryAfter)
	}
}

// TestWindowSlides verifies that capacity returns once old stamps expire.
func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(60*time.Second, 2)

	l.AddRequest()
	clock.advance(30 * time.Second)
	l.AddRequest()

	if l.CanMakeRequest() {
		t.Fatal("limiter should be full")
	}

	// The oldest stamp expires 60s after it was recorded.
	clock.advance(31 * time.Second)
	if !l.CanMakeRequest() {
		t.Error("oldest stamp should have exited the window")
	}
	if got := l.Remaining(); got != 1 {
		t.Errorf("Remaining() = %d, expected 1", got)
	}
}

// TestWaitTimeTracksOldest verifies WaitTime counts down as time passes.
func TestWaitTimeTracksOldest(t *testing.T) {
	l, clock := newTestLimiter(60*time.Second, 1)

	l.AddRequest()
	if got := l.WaitTime(); got != 60*time.Second {
		t.Errorf("WaitTime() = %v, expected 60s", got)
	}

	clock.advance(45 * time.Second)
	if got := l.WaitTime(); got != 15*time.Second {
		t.Errorf("WaitTime() = %v, expected 15s", got)
	}

	clock.advance(15 * time.Second)
	if got := l.WaitTime(); got != 0 {
		t.Errorf("WaitTime() = %v, expected 0", got)
	}
}

// TestCheckDoesNotRecord verifies Check never consumes capacity.
func TestCheckDoesNotRecord(t *testing.T) {
	l, _ := newTestLimiter(60*time.Second, 1)

	for i := 0; i < 5; i++ {
		if err := l.Check(); err != nil {
			t.Fatalf("Check() refused with no recorded requests: %v", err)
		}
	}
	if got := l.Remaining(); got != 1 {
		t.Errorf("Remaining() = %d, expected 1", got)
	}
}

// TestReset verifies Reset restores full capacity.
func TestReset(t *testing.T) {
	l, _ := newTestLimiter(60*time.Second, 2)
	l.AddRequest()
	l.AddRequest()
	l.Reset()

	if !l.CanMakeRequest() {
		t.Error("limiter should have capacity after Reset")
	}
	if got := l.Remaining(); got != 2 {
		t.Errorf("Remaining() = %d, expected 2", got)
	}
}

// TestDefaults verifies non-positive constructor arguments fall back.
func TestDefaults(t *testing.T) {
	l := New(0, 0)
	if l.window != DefaultWindow {
		t.Errorf("window = %v, expected %v", l.window, DefaultWindow)
	}
	if l.ceiling != DefaultCeiling {
		t.Errorf("ceiling = %d, expected %d", l.ceiling, DefaultCeiling)
	}
}
