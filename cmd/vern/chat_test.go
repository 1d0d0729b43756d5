// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/vern-tools/vern/protocol"
)

// scriptedDriver records requests and answers each with a canned ack.
type scriptedDriver struct {
	requests []protocol.Request
	response protocol.Response
}

func (driver *scriptedDriver) Do(request protocol.Request) (protocol.Response, *protocol.Completion, error) {
	driver.requests = append(driver.requests, request)
	response := driver.response
	if response.Status == "" {
		response = protocol.Response{Status: protocol.StatusSuccess, Cmd: protocol.CmdAck}
	}
	return response, nil, nil
}

func TestChatDirectives(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     string
		wantQuit bool
		wantCmd  protocol.Command
		wantErr  bool
	}{
		{name: "quit", line: "/quit", wantQuit: true},
		{name: "quit short", line: "/q", wantQuit: true},
		{name: "reset", line: "/reset", wantCmd: protocol.CmdReset},
		{name: "model", line: "/model gpt-4o", wantCmd: protocol.CmdSetModel},
		{name: "system", line: "/system Be terse.", wantCmd: protocol.CmdSetSystem},
		{name: "model missing arg", line: "/model", wantErr: true},
		{name: "system missing arg", line: "/system", wantErr: true},
		{name: "unknown", line: "/frobnicate", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			driver := &scriptedDriver{}
			quit, err := runChatDirective(driver, "work", test.line)
			if quit != test.wantQuit {
				t.Errorf("quit = %v, want %v", quit, test.wantQuit)
			}
			if (err != nil) != test.wantErr {
				t.Errorf("err = %v, wantErr %v", err, test.wantErr)
			}
			if test.wantCmd != "" {
				if len(driver.requests) != 1 {
					t.Fatalf("requests = %d, want 1", len(driver.requests))
				}
				if driver.requests[0].Cmd != test.wantCmd {
					t.Errorf("cmd = %q, want %q", driver.requests[0].Cmd, test.wantCmd)
				}
				if driver.requests[0].SID != "work" {
					t.Errorf("sid = %q, want work", driver.requests[0].SID)
				}
			}
		})
	}
}

func TestChatDirectivePayloads(t *testing.T) {
	t.Parallel()

	driver := &scriptedDriver{}
	if _, err := runChatDirective(driver, "work", "/model gpt-4o"); err != nil {
		t.Fatalf("model directive failed: %v", err)
	}
	if _, err := runChatDirective(driver, "work", "/system You are terse."); err != nil {
		t.Fatalf("system directive failed: %v", err)
	}

	if driver.requests[0].Model != "gpt-4o" {
		t.Errorf("model = %q", driver.requests[0].Model)
	}
	if driver.requests[1].System != "You are terse." {
		t.Errorf("system = %q", driver.requests[1].System)
	}
}
