// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// Command is a request command. The set is closed: DecodeRequest
// rejects anything outside it, and the server dispatches with an
// exhaustive switch, so adding or removing a command is a
// compile-time-visible change in both places.
type Command string

const (
	// CmdInit creates or reuses the ephemeral per-process session
	// named by the request SID. Used by the REPL on startup.
	CmdInit Command = "init"

	// CmdNewSession creates a named session. Fails if it exists.
	CmdNewSession Command = "new-session"

	// CmdUseSession loads an existing session into the server cache.
	// When Data is non-empty it also runs a query against it.
	CmdUseSession Command = "use-session"

	// CmdQuery appends a user message, calls the model, appends the
	// assistant reply, and returns the completion.
	CmdQuery Command = "query"

	// CmdOneshotQuery answers from the session's system prompt plus
	// the single supplied message. The reply is stored as a side
	// artifact; the conversation history is untouched.
	CmdOneshotQuery Command = "oneshot-query"

	// CmdSetSystem replaces the session's system prompt.
	CmdSetSystem Command = "set-system"

	// CmdSetModel replaces the session's model selection.
	CmdSetModel Command = "set-model"

	// CmdReset clears the session's conversation history, preserving
	// the system prompt and model.
	CmdReset Command = "reset"

	// CmdRemoveSession moves the session to the trash directory.
	CmdRemoveSession Command = "remove-session"

	// CmdListSessions enumerates sessions with system-prompt previews.
	CmdListSessions Command = "list-sessions"

	// CmdListModels asks the provider for its available model ids.
	CmdListModels Command = "list-models"

	// CmdExit acknowledges and then shuts the server down.
	CmdExit Command = "exit"
)

var validCommands = map[Command]struct{}{
	CmdInit: {}, CmdNewSession: {}, CmdUseSession: {}, CmdQuery: {},
	CmdOneshotQuery: {}, CmdSetSystem: {}, CmdSetModel: {}, CmdReset: {},
	CmdRemoveSession: {}, CmdListSessions: {}, CmdListModels: {}, CmdExit: {},
}

// Valid reports whether c is a member of the command enumeration.
func (c Command) Valid() bool {
	_, ok := validCommands[c]
	return ok
}

// Status values for Response.Status.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response Cmd values. On success the server echoes the request
// command, or sends one of the two acknowledgement kinds below. On
// error the Cmd field carries a machine-readable error code so the
// client can react differently (exit vs. retry vs. prompt the user).
const (
	// CmdAck acknowledges a command with no payload to follow.
	CmdAck = "ack"

	// CmdResponseFollows signals that a second frame carrying a
	// Completion immediately follows on the same connection.
	CmdResponseFollows = "response-follows"

	// ErrCodeNotFound: the addressed session does not exist.
	ErrCodeNotFound = "not-found"

	// ErrCodeAlreadyExists: session creation hit an existing name.
	ErrCodeAlreadyExists = "already-exists"

	// ErrCodeInvalidCommand: the request cmd is outside the enumeration.
	ErrCodeInvalidCommand = "invalid-command"

	// ErrCodeInvalidRequest: the request frame was not decodable, or a
	// response frame was empty or malformed (synthesized client-side).
	ErrCodeInvalidRequest = "invalid-request"

	// ErrCodeAuth: the provider rejected our credentials.
	ErrCodeAuth = "auth-error"

	// ErrCodeAPI: any other provider failure (rate limit, overload,
	// network). The Data field carries the provider's message.
	ErrCodeAPI = "api-error"

	// ErrCodeTokenLimit: the conversation plus the new message exceeds
	// the configured token budget. Nothing was persisted.
	ErrCodeTokenLimit = "token-limit-exceeded"

	// ErrCodeServer: an unclassified server-side failure.
	ErrCodeServer = "server-error"
)

// Request is one client command addressed to a session.
type Request struct {
	// CID is a client-generated UUID identifying the requesting
	// process. It is echoed in responses and appears in server logs
	// so concurrent clients can be told apart.
	CID string `json:"cid"`

	// SID names the session the command operates on. Commands that
	// need no session (list-sessions, list-models, exit) leave it
	// empty.
	SID string `json:"sid"`

	// Cmd is the command to execute.
	Cmd Command `json:"cmd"`

	// Data carries the command-specific payload: query text, the new
	// system prompt for set-system, the model name for set-model, or
	// the session name for session-lifecycle commands when it differs
	// from SID.
	Data string `json:"data,omitempty"`

	// System optionally supplies a system prompt for new-session.
	System string `json:"system,omitempty"`

	// Model optionally selects a model for the session at creation.
	Model string `json:"model,omitempty"`
}

// Response is the server's acknowledgement for one request.
type Response struct {
	CID    string `json:"cid"`
	SID    string `json:"sid"`
	Status string `json:"status"`
	Cmd    string `json:"cmd"`
	Data   string `json:"data,omitempty"`
}

// OK reports whether the response carries a success status.
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// Usage reports the token accounting for one completion.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
}

// Completion is the second-phase payload for the query family. It is
// deliberately self-describing JSON rather than a provider SDK object:
// any client that speaks the framing can decode it.
type Completion struct {
	// Text is the assistant's reply.
	Text string `json:"text"`

	// FinishReason is the provider's stop reason ("stop", "length",
	// ...), passed through for display.
	FinishReason string `json:"finishReason"`

	// Model is the model that produced the reply.
	Model string `json:"model,omitempty"`

	// Usage is the provider-reported token accounting.
	Usage Usage `json:"usage"`
}

// DecodeRequest parses and validates one request frame payload.
func DecodeRequest(payload []byte) (Request, error) {
	var request Request
	if err := json.Unmarshal(payload, &request); err != nil {
		return Request{}, fmt.Errorf("invalid request JSON: %w", err)
	}
	if request.Cmd == "" {
		return Request{}, fmt.Errorf("missing cmd")
	}
	if !request.Cmd.Valid() {
		return Request{}, fmt.Errorf("invalid command %q", request.Cmd)
	}
	return request, nil
}

// DecodeResponse parses one response frame payload. An empty or
// malformed payload maps to a synthetic error response rather than an
// error return: a broken server reply is something the caller reports
// to the user, not a programming error.
func DecodeResponse(payload []byte) Response {
	if len(payload) == 0 {
		return Response{Status: StatusError, Cmd: ErrCodeInvalidRequest, Data: "empty response from server"}
	}
	var response Response
	if err := json.Unmarshal(payload, &response); err != nil {
		return Response{Status: StatusError, Cmd: ErrCodeInvalidRequest, Data: "malformed response from server"}
	}
	return response
}

// DecodeCompletion parses the second-phase payload frame.
func DecodeCompletion(payload []byte) (Completion, error) {
	var completion Completion
	if err := json.Unmarshal(payload, &completion); err != nil {
		return Completion{}, fmt.Errorf("invalid completion JSON: %w", err)
	}
	return completion, nil
}

// WriteJSONFrame marshals v and writes it as one frame.
func WriteJSONFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame payload: %w", err)
	}
	return WriteFrame(w, payload)
}
