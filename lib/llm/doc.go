// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a provider-agnostic interface for Large
// Language Model completion APIs.
//
// The primary abstraction is [Provider]: a blocking completion call
// plus model enumeration. Provider implementations translate between
// the common types in this package and each vendor's wire format. The
// server treats the provider as an opaque dependency — it hands over a
// system prompt and message history and gets back text, a stop reason,
// and token usage.
//
// All HTTP requests go through a caller-supplied [http.Client], so
// tests can point a provider at a local httptest server and the daemon
// can set its own timeout policy in one place.
//
// Provider failures surface as [*ProviderError] with the HTTP status
// preserved, so callers can distinguish a bad API key (auth) from rate
// limiting or a provider outage without string matching.
//
// Current provider implementations:
//   - [OpenAI]: chat models via the Chat Completions API
//   - [Mock]: scriptable in-memory provider for tests
package llm
