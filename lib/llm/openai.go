// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DefaultOpenAIBaseURL is the public Chat Completions endpoint base.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI implements [Provider] for OpenAI's Chat Completions API and
// API-compatible servers.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewOpenAI creates an OpenAI provider. A nil httpClient uses
// http.DefaultClient. An empty baseURL uses [DefaultOpenAIBaseURL];
// pointing it elsewhere selects any API-compatible server.
func NewOpenAI(httpClient *http.Client, baseURL, apiKey string) *OpenAI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &OpenAI{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Complete implements [Provider].
func (provider *OpenAI) Complete(ctx context.Context, request Request) (*Response, error) {
	wireRequest := provider.buildRequest(request)

	httpResponse, err := doProviderRequest(ctx, provider.httpClient, http.MethodPost,
		provider.baseURL+"/chat/completions", provider.apiKey, wireRequest, "openai complete")
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	var wireResp openaiResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("openai complete: decoding response: %w", err)
	}
	return wireResp.toResponse()
}

// ListModels implements [Provider].
func (provider *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	httpResponse, err := doProviderRequest(ctx, provider.httpClient, http.MethodGet,
		provider.baseURL+"/models", provider.apiKey, nil, "openai list models")
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	var wireList struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireList); err != nil {
		return nil, fmt.Errorf("openai list models: decoding response: %w", err)
	}

	ids := make([]string, 0, len(wireList.Data))
	for _, model := range wireList.Data {
		ids = append(ids, model.ID)
	}
	return ids, nil
}

func (provider *OpenAI) buildRequest(request Request) openaiRequest {
	messages := make([]openaiMessage, 0, len(request.Messages)+1)
	if request.System != "" {
		messages = append(messages, openaiMessage{Role: RoleSystem, Content: request.System})
	}
	for _, message := range request.Messages {
		messages = append(messages, openaiMessage{Role: message.Role, Content: message.Content})
	}
	return openaiRequest{
		Model:       request.Model,
		Messages:    messages,
		Temperature: request.Temperature,
	}
}

// --- Wire types ---

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

func (wireResp *openaiResponse) toResponse() (*Response, error) {
	if len(wireResp.Choices) == 0 {
		return nil, fmt.Errorf("openai complete: response has no choices")
	}
	choice := wireResp.Choices[0]
	return &Response{
		Text:       choice.Message.Content,
		StopReason: mapOpenAIFinishReason(choice.FinishReason),
		Model:      wireResp.Model,
		Usage: Usage{
			PromptTokens:     wireResp.Usage.PromptTokens,
			CompletionTokens: wireResp.Usage.CompletionTokens,
		},
	}, nil
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopEndTurn
	case "length":
		return StopMaxTokens
	default:
		// Unknown reasons pass through so nothing is lost in display.
		return StopReason(reason)
	}
}
