// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions, messages,
// and file attachments.
//
// A Session is one independent, titled conversation holding an ordered list
// of messages. A Message is a single turn authored by the user or the
// assistant; its content grows while a response streams in and is finalized
// exactly once. Attachments are validated records handed over by the file
// ingestion boundary.
//
// Identifiers are UUID-backed so rapid successive creation cannot collide.
package model
