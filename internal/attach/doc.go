// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach is the file-ingestion boundary for conversation
// attachments. It reads files, enforces a size ceiling and a MIME
// allow-list, and hands validated attachment records to the session
// engine. A batch is all-or-nothing: the first invalid file rejects
// the whole batch.
package attach
