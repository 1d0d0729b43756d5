// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload string
		wantErr bool
		wantCmd Command
	}{
		{
			name:    "query",
			payload: `{"cid":"c1","sid":"demo","cmd":"query","data":"Hello"}`,
			wantCmd: CmdQuery,
		},
		{
			name:    "new session with system prompt",
			payload: `{"sid":"alpha","cmd":"new-session","system":"Act as a pirate"}`,
			wantCmd: CmdNewSession,
		},
		{
			name:    "list needs no sid",
			payload: `{"cmd":"list-sessions"}`,
			wantCmd: CmdListSessions,
		},
		{
			name:    "unknown command",
			payload: `{"sid":"demo","cmd":"frobnicate"}`,
			wantErr: true,
		},
		{
			name:    "missing command",
			payload: `{"sid":"demo"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `GET / HTTP/1.1`,
			wantErr: true,
		},
		{
			name:    "empty payload",
			payload: ``,
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			request, err := DecodeRequest([]byte(test.payload))
			if test.wantErr {
				if err == nil {
					t.Fatalf("DecodeRequest(%q): expected error, got %+v", test.payload, request)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeRequest(%q): %v", test.payload, err)
			}
			if request.Cmd != test.wantCmd {
				t.Errorf("cmd: got %q, want %q", request.Cmd, test.wantCmd)
			}
		})
	}
}

func TestDecodeResponseSynthesizesErrors(t *testing.T) {
	t.Parallel()

	response := DecodeResponse(nil)
	if response.OK() || response.Cmd != ErrCodeInvalidRequest {
		t.Errorf("empty payload: got %+v, want synthetic invalid-request error", response)
	}

	response = DecodeResponse([]byte("{not json"))
	if response.OK() || response.Cmd != ErrCodeInvalidRequest {
		t.Errorf("malformed payload: got %+v, want synthetic invalid-request error", response)
	}

	response = DecodeResponse([]byte(`{"sid":"demo","status":"success","cmd":"ack"}`))
	if !response.OK() || response.SID != "demo" {
		t.Errorf("valid payload: got %+v", response)
	}
}

func TestCompletionRoundTripsThroughFrame(t *testing.T) {
	t.Parallel()
	completion := Completion{
		Text:         "Hi there",
		FinishReason: "stop",
		Model:        "gpt-4o-mini",
		Usage:        Usage{PromptTokens: 12, CompletionTokens: 3},
	}

	var buffer bytes.Buffer
	if err := WriteJSONFrame(&buffer, completion); err != nil {
		t.Fatalf("WriteJSONFrame: %v", err)
	}

	payload, err := ReadFrame(&buffer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	var got Completion
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal completion: %v", err)
	}
	if got != completion {
		t.Errorf("completion: got %+v, want %+v", got, completion)
	}
}

func TestCommandValid(t *testing.T) {
	t.Parallel()
	for command := range validCommands {
		if !command.Valid() {
			t.Errorf("%q should be valid", command)
		}
	}
	if Command("rm -rf").Valid() {
		t.Error("arbitrary string should not be a valid command")
	}
}
