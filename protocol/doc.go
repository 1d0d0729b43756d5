// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire format shared by the vern client
// and server: a length-prefixed framing codec over a stream socket and
// the JSON request/response types carried inside frames.
//
// The package is organized around the two layers of the protocol:
//
//   - frame.go: framing codec (4-byte big-endian length + payload)
//   - protocol.go: request/response/completion JSON types and the
//     closed command enumeration
//
// Every message in both directions is framed the same way. A request
// connection carries exactly one request frame and one or two response
// frames: a small JSON acknowledgement, then — only when the
// acknowledgement's Cmd is [CmdResponseFollows] — a second frame with
// the self-describing [Completion] payload.
//
// Both cmd/vern and cmd/vern-server import this package so the wire
// types are defined once rather than mirrored.
package protocol
