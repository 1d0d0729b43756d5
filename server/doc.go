// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the vern daemon: a TCP listener that
// executes one framed request per connection against the session
// store and the configured LLM provider.
//
// The connection model is deliberately simple. Each accepted
// connection carries exactly one request and receives one response
// frame, or two when a completion payload follows. There is no
// pipelining and no cross-request connection state; everything
// durable lives in the session store. A buffered-channel semaphore
// bounds the number of in-flight handlers, so overload waits in the
// accept backlog instead of growing goroutines without limit.
//
// On startup the server publishes its bound address to the discovery
// file so clients can find it without a fixed port. Shutdown comes
// from context cancellation or the exit command; either closes the
// listener, drains in-flight handlers, and removes the discovery
// file.
package server
