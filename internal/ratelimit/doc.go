// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ratelimit bounds outgoing provider requests within a rolling
// time window.
//
// The limiter throttles against a single provider account, so one instance
// is shared across all sessions. It is constructed explicitly and injected;
// there is no package-level singleton.
package ratelimit
