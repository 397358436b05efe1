// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session is the conversation engine. The Store owns the session
// list, the active session, and pending attachments; it orchestrates
// sending a message through the rate limiter and the provider adapter,
// mirroring streamed tokens into the placeholder assistant message.
//
// Every mutation is atomic under the store lock. At most one stream is in
// flight at a time; a second send is refused with ErrStreamInFlight until
// the first completes or is cancelled.
package session
