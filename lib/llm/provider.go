// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Role values for [Message].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversational turn in the common format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Request is a completion request in the common format.
type Request struct {
	// Model is the provider model identifier.
	Model string

	// System is the system prompt, sent ahead of Messages.
	System string

	// Messages is the ordered conversation history, oldest first.
	Messages []Message

	// Temperature is the sampling temperature. Vern always requests
	// deterministic output (0) but the field is explicit so tests can
	// assert it reached the wire.
	Temperature float64
}

// StopReason explains why the model stopped generating.
type StopReason string

const (
	// StopEndTurn: the model finished its reply.
	StopEndTurn StopReason = "stop"
	// StopMaxTokens: generation hit the output token ceiling.
	StopMaxTokens StopReason = "length"
)

// Usage is the provider-reported token accounting for one completion.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Response is a completion response in the common format.
type Response struct {
	// Text is the assistant reply.
	Text string

	// StopReason explains why generation ended.
	StopReason StopReason

	// Model is the model that actually served the request, as
	// reported by the provider.
	Model string

	// Usage is the token accounting.
	Usage Usage
}

// Provider is the interface for LLM API backends. Implementations
// translate between the common types in this package and each
// vendor's wire format.
type Provider interface {
	// Complete sends a request and blocks until the full response is
	// available.
	Complete(ctx context.Context, request Request) (*Response, error)

	// ListModels returns the model identifiers the provider offers.
	ListModels(ctx context.Context) ([]string, error)
}

// ProviderError is returned when the LLM API responds with an error.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider-specific error type string
	// (e.g., "invalid_request_error", "rate_limit_error").
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsAuthFailure returns true if the provider rejected our credentials
// (HTTP 401/403).
func (err *ProviderError) IsAuthFailure() bool {
	return err.StatusCode == http.StatusUnauthorized || err.StatusCode == http.StatusForbidden
}

// IsRateLimited returns true if the error is a rate limit or quota
// response (HTTP 429).
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// doProviderRequest marshals wireRequest as JSON when non-nil, sends
// it to endpoint via httpClient with the given method, and returns the
// HTTP response. Returns a *ProviderError for non-200 status codes.
//
// On success the caller is responsible for closing the response body.
// On error the body is already closed.
func doProviderRequest(ctx context.Context, httpClient *http.Client, method, endpoint, apiKey string, wireRequest any, prefix string) (*http.Response, error) {
	var body io.Reader
	if wireRequest != nil {
		encoded, err := json.Marshal(wireRequest)
		if err != nil {
			return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
		}
		body = bytes.NewReader(encoded)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	if wireRequest != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+apiKey)
	}

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}

	return httpResponse, nil
}

// readProviderError parses an error response body in the common
// provider error format: {"error":{"type":"...","message":"..."}}.
// Extra fields in the error object (OpenAI's "code" and "param") are
// silently ignored.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}

	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Message:    string(body),
	}
}
