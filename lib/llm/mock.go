// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scriptable in-memory [Provider] for tests. Responses are
// consumed in FIFO order; an exhausted script echoes the last user
// message so tests that don't care about content still get a
// deterministic reply. Mock records every request it receives.
type Mock struct {
	mutex    sync.Mutex
	script   []mockReply
	requests []Request

	// Models is returned by ListModels.
	Models []string
}

type mockReply struct {
	response *Response
	err      error
}

// NewMock creates a Mock with no scripted replies.
func NewMock() *Mock {
	return &Mock{Models: []string{"mock-small", "mock-large"}}
}

// Reply scripts a successful completion with the given text.
func (mock *Mock) Reply(text string) *Mock {
	mock.mutex.Lock()
	defer mock.mutex.Unlock()
	mock.script = append(mock.script, mockReply{response: &Response{
		Text:       text,
		StopReason: StopEndTurn,
		Model:      "mock-small",
		Usage:      Usage{PromptTokens: int64(len(text)), CompletionTokens: int64(len(text))},
	}})
	return mock
}

// Fail scripts an error return.
func (mock *Mock) Fail(err error) *Mock {
	mock.mutex.Lock()
	defer mock.mutex.Unlock()
	mock.script = append(mock.script, mockReply{err: err})
	return mock
}

// Complete implements [Provider].
func (mock *Mock) Complete(_ context.Context, request Request) (*Response, error) {
	mock.mutex.Lock()
	defer mock.mutex.Unlock()
	mock.requests = append(mock.requests, request)

	if len(mock.script) > 0 {
		reply := mock.script[0]
		mock.script = mock.script[1:]
		if reply.err != nil {
			return nil, reply.err
		}
		return reply.response, nil
	}

	last := ""
	if len(request.Messages) > 0 {
		last = request.Messages[len(request.Messages)-1].Content
	}
	return &Response{
		Text:       fmt.Sprintf("echo: %s", last),
		StopReason: StopEndTurn,
		Model:      request.Model,
	}, nil
}

// ListModels implements [Provider].
func (mock *Mock) ListModels(context.Context) ([]string, error) {
	return mock.Models, nil
}

// Requests returns a copy of every request received so far.
func (mock *Mock) Requests() []Request {
	mock.mutex.Lock()
	defer mock.mutex.Unlock()
	return append([]Request(nil), mock.requests...)
}
