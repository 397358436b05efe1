// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider contains the adapters for model-serving backends.
//
// An Adapter opens an authenticated request against one backend and feeds
// the raw transport through the SSE decoder, reporting progress through
// callbacks: zero or more OnToken calls carrying the cumulative text so far,
// then exactly one terminal OnComplete or OnError.
//
// Two adapter families exist: native streaming (OpenRouter-compatible
// completions endpoints) and replay adapters that emulate streaming for
// backends without incremental delivery. Adapter.Native distinguishes them,
// since emulated streaming has different latency and cancellation
// characteristics.
package provider
