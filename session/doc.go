// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// Package session persists assistant conversations on disk.
//
// Each session lives in its own directory under the data root,
// session-<sid>/, holding three concerns as separate files:
//
//   - system.json: the system prompt (a JSON string)
//   - conversation.json: the message history (a JSON array)
//   - model: the model identifier (plain text)
//
// One-shot exchanges are saved beside them as auto-numbered
// oneshot-N.json artifacts without touching the history.
//
// [Store] is the only entry point. Every mutation persists
// synchronously with a write-temp-then-rename replace, so a crash
// never leaves a partially written file, and a per-session lock makes
// each mutate-then-persist step a single critical section. Removed
// sessions are moved into a process-scoped trash directory rather
// than deleted, so a mistaken remove is recoverable until the server
// shuts down cleanly.
package session
