// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/vern-tools/vern/lib/llm"
	"github.com/vern-tools/vern/lib/tokens"
	"github.com/vern-tools/vern/protocol"
	"github.com/vern-tools/vern/session"
)

// result is one dispatched command's outcome: the acknowledgement
// frame, an optional completion payload frame, and whether the server
// should shut down after the response is written.
type result struct {
	response   protocol.Response
	completion *protocol.Completion
	shutdown   bool
}

// handleConnection runs one request/response cycle and closes the
// connection. Panics and errors never escape: anything unclassified
// becomes a server-error response, and the accept loop is unaffected.
func (server *Server) handleConnection(ctx context.Context, connection net.Conn) {
	defer connection.Close()

	log := server.log.With("remote", connection.RemoteAddr().String())

	payload, err := protocol.ReadFrame(connection)
	if err != nil {
		log.Warn("reading request frame", "error", err)
		return
	}

	request, err := protocol.DecodeRequest(payload)
	if err != nil {
		log.Warn("rejecting undecodable request", "error", err)
		code := protocol.ErrCodeInvalidRequest
		if strings.Contains(err.Error(), "invalid command") {
			code = protocol.ErrCodeInvalidCommand
		}
		writeResponse(log, connection, protocol.Response{
			Status: protocol.StatusError,
			Cmd:    code,
			Data:   err.Error(),
		})
		return
	}

	log = log.With("cid", request.CID, "cmd", string(request.Cmd), "sid", request.SID)
	log.Debug("dispatching request")

	outcome := server.dispatchSafely(ctx, log, request)

	writeResponse(log, connection, outcome.response)
	if outcome.completion != nil {
		if err := protocol.WriteJSONFrame(connection, outcome.completion); err != nil {
			log.Warn("writing completion frame", "error", err)
		}
	}
	if outcome.shutdown {
		log.Info("exit command received, shutting down")
		server.stop()
	}
}

func writeResponse(log *slog.Logger, connection net.Conn, response protocol.Response) {
	if err := protocol.WriteJSONFrame(connection, response); err != nil {
		log.Warn("writing response frame", "error", err)
	}
}

// dispatchSafely wraps dispatch with panic recovery. A panic in a
// handler becomes a server-error response for this one connection.
func (server *Server) dispatchSafely(ctx context.Context, log *slog.Logger, request protocol.Request) (outcome result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error("panic in dispatch", "panic", recovered)
			outcome = result{response: errorResponse(request, protocol.ErrCodeServer,
				fmt.Sprintf("internal error: %v", recovered))}
		}
	}()
	return server.dispatch(ctx, request)
}

// dispatch executes one command. The switch is exhaustive over the
// command enumeration; DecodeRequest already rejected anything
// outside it.
func (server *Server) dispatch(ctx context.Context, request protocol.Request) result {
	switch request.Cmd {
	case protocol.CmdInit:
		return server.handleInit(request)
	case protocol.CmdNewSession:
		return server.handleNewSession(request)
	case protocol.CmdUseSession:
		return server.handleUseSession(ctx, request)
	case protocol.CmdQuery:
		return server.handleQuery(ctx, request)
	case protocol.CmdOneshotQuery:
		return server.handleOneshotQuery(ctx, request)
	case protocol.CmdSetSystem:
		return server.handleSetSystem(request)
	case protocol.CmdSetModel:
		return server.handleSetModel(request)
	case protocol.CmdReset:
		return server.handleReset(request)
	case protocol.CmdRemoveSession:
		return server.handleRemoveSession(request)
	case protocol.CmdListSessions:
		return server.handleListSessions(request)
	case protocol.CmdListModels:
		return server.handleListModels(ctx, request)
	case protocol.CmdExit:
		return result{
			response: ackResponse(request, "server shutting down"),
			shutdown: true,
		}
	default:
		return result{response: errorResponse(request, protocol.ErrCodeInvalidCommand,
			fmt.Sprintf("unhandled command %q", request.Cmd))}
	}
}

// handleInit creates or reuses the ephemeral per-process session the
// client named. Unlike new-session, hitting an existing session is
// the expected repeat-invocation path, not an error.
func (server *Server) handleInit(request protocol.Request) result {
	if server.store.Exists(request.SID) {
		return result{response: ackResponse(request, "session resumed")}
	}
	if _, err := server.store.Create(request.SID, request.System, request.Model); err != nil {
		return result{response: storeErrorResponse(request, err)}
	}
	return result{response: ackResponse(request, "session created")}
}

func (server *Server) handleNewSession(request protocol.Request) result {
	if _, err := server.store.Create(request.SID, request.System, request.Model); err != nil {
		return result{response: storeErrorResponse(request, err)}
	}
	return result{response: ackResponse(request, "session created")}
}

// handleUseSession loads an existing session, and when the request
// carries query text also runs the query against it.
func (server *Server) handleUseSession(ctx context.Context, request protocol.Request) result {
	if _, err := server.store.Load(request.SID); err != nil {
		return result{response: storeErrorResponse(request, err)}
	}
	if request.Data != "" {
		return server.runQuery(ctx, request)
	}
	return result{response: ackResponse(request, "session loaded")}
}

func (server *Server) handleQuery(ctx context.Context, request protocol.Request) result {
	if !server.store.Exists(request.SID) {
		if !server.cfg.Session.AutoCreateOnQuery {
			return result{response: errorResponse(request, protocol.ErrCodeNotFound,
				fmt.Sprintf("session %q does not exist", request.SID))}
		}
		if _, err := server.store.Create(request.SID, request.System, request.Model); err != nil {
			return result{response: storeErrorResponse(request, err)}
		}
	}
	return server.runQuery(ctx, request)
}

// runQuery is the shared conversational query flow: budget check
// first (an over-budget query persists nothing), then append the user
// turn, call the provider, and append the reply.
func (server *Server) runQuery(ctx context.Context, request protocol.Request) result {
	loaded, err := server.store.Load(request.SID)
	if err != nil {
		return result{response: storeErrorResponse(request, err)}
	}

	contextTexts := []string{loaded.SystemPrompt, request.Data}
	for _, message := range loaded.Messages {
		contextTexts = append(contextTexts, message.Content)
	}
	estimated := tokens.EstimateAll(contextTexts...)
	if budget := server.cfg.Session.TokenBudget; estimated > budget {
		return result{response: errorResponse(request, protocol.ErrCodeTokenLimit,
			fmt.Sprintf("estimated %d tokens exceeds budget of %d; reset the session or start a new one",
				estimated, budget))}
	}

	if err := server.store.AppendUser(request.SID, request.Data); err != nil {
		return result{response: errorResponse(request, protocol.ErrCodeServer, err.Error())}
	}

	completion, err := server.provider.Complete(ctx, llm.Request{
		Model:    loaded.Model,
		System:   loaded.SystemPrompt,
		Messages: append(loaded.Messages, llm.UserMessage(request.Data)),
	})
	if err != nil {
		return result{response: providerErrorResponse(request, err)}
	}

	if err := server.store.AppendAssistant(request.SID, completion.Text); err != nil {
		return result{response: errorResponse(request, protocol.ErrCodeServer, err.Error())}
	}

	return result{
		response:   followsResponse(request),
		completion: toWireCompletion(completion),
	}
}

// handleOneshotQuery answers from the session's system prompt plus
// the single supplied message. The reply lands in a side artifact;
// the conversation history is untouched.
func (server *Server) handleOneshotQuery(ctx context.Context, request protocol.Request) result {
	loaded, err := server.store.Load(request.SID)
	if err != nil {
		return result{response: storeErrorResponse(request, err)}
	}

	systemPrompt := loaded.SystemPrompt
	if request.System != "" {
		systemPrompt = request.System
	}

	completion, err := server.provider.Complete(ctx, llm.Request{
		Model:    loaded.Model,
		System:   systemPrompt,
		Messages: []llm.Message{llm.UserMessage(request.Data)},
	})
	if err != nil {
		return result{response: providerErrorResponse(request, err)}
	}

	if err := server.store.AddOneshotArtifact(request.SID, request.Data, completion.Text); err != nil {
		return result{response: errorResponse(request, protocol.ErrCodeServer, err.Error())}
	}

	return result{
		response:   followsResponse(request),
		completion: toWireCompletion(completion),
	}
}

func (server *Server) handleSetSystem(request protocol.Request) result {
	systemPrompt := request.System
	if systemPrompt == "" {
		systemPrompt = request.Data
	}
	if err := server.store.SetSystemPrompt(request.SID, systemPrompt); err != nil {
		return result{response: storeErrorResponse(request, err)}
	}
	return result{response: ackResponse(request, "system prompt updated")}
}

func (server *Server) handleSetModel(request protocol.Request) result {
	model := request.Model
	if model == "" {
		model = request.Data
	}
	if err := server.store.SetModel(request.SID, model); err != nil {
		return result{response: storeErrorResponse(request, err)}
	}
	return result{response: ackResponse(request, "model updated")}
}

func (server *Server) handleReset(request protocol.Request) result {
	if err := server.store.Reset(request.SID); err != nil {
		return result{response: storeErrorResponse(request, err)}
	}
	return result{response: ackResponse(request, "history cleared")}
}

func (server *Server) handleRemoveSession(request protocol.Request) result {
	if err := server.store.Remove(request.SID); err != nil {
		return result{response: storeErrorResponse(request, err)}
	}
	return result{response: ackResponse(request, "session removed")}
}

func (server *Server) handleListSessions(request protocol.Request) result {
	infos, err := server.store.List()
	if err != nil {
		return result{response: errorResponse(request, protocol.ErrCodeServer, err.Error())}
	}
	var builder strings.Builder
	for _, info := range infos {
		builder.WriteString(info.SID)
		builder.WriteByte('\t')
		builder.WriteString(info.SystemPreview)
		builder.WriteByte('\n')
	}
	return result{response: ackResponse(request, builder.String())}
}

func (server *Server) handleListModels(ctx context.Context, request protocol.Request) result {
	models, err := server.provider.ListModels(ctx)
	if err != nil {
		return result{response: providerErrorResponse(request, err)}
	}
	return result{response: ackResponse(request, strings.Join(models, " "))}
}

func ackResponse(request protocol.Request, data string) protocol.Response {
	return protocol.Response{
		CID:    request.CID,
		SID:    request.SID,
		Status: protocol.StatusSuccess,
		Cmd:    protocol.CmdAck,
		Data:   data,
	}
}

func followsResponse(request protocol.Request) protocol.Response {
	return protocol.Response{
		CID:    request.CID,
		SID:    request.SID,
		Status: protocol.StatusSuccess,
		Cmd:    protocol.CmdResponseFollows,
	}
}

func errorResponse(request protocol.Request, code, message string) protocol.Response {
	return protocol.Response{
		CID:    request.CID,
		SID:    request.SID,
		Status: protocol.StatusError,
		Cmd:    code,
		Data:   message,
	}
}

// storeErrorResponse maps session-store sentinels to their wire
// codes; anything else is a server error.
func storeErrorResponse(request protocol.Request, err error) protocol.Response {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return errorResponse(request, protocol.ErrCodeNotFound, err.Error())
	case errors.Is(err, session.ErrSessionExists):
		return errorResponse(request, protocol.ErrCodeAlreadyExists, err.Error())
	default:
		return errorResponse(request, protocol.ErrCodeServer, err.Error())
	}
}

// providerErrorResponse classifies provider failures: credential
// problems get their own code so the client can tell the user to fix
// the key rather than retry.
func providerErrorResponse(request protocol.Request, err error) protocol.Response {
	var providerErr *llm.ProviderError
	if errors.As(err, &providerErr) && providerErr.IsAuthFailure() {
		return errorResponse(request, protocol.ErrCodeAuth, providerErr.Message)
	}
	return errorResponse(request, protocol.ErrCodeAPI, err.Error())
}

func toWireCompletion(response *llm.Response) *protocol.Completion {
	return &protocol.Completion{
		Text:         response.Text,
		FinishReason: string(response.StopReason),
		Model:        response.Model,
		Usage: protocol.Usage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
		},
	}
}
