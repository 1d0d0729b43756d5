// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "json request", payload: []byte(`{"sid":"demo","cmd":"query","data":"Hello"}`)},
		{name: "empty payload", payload: nil},
		{name: "binary payload", payload: []byte{0x00, 0xff, 0x10, 0x80}},
		{name: "large payload", payload: bytes.Repeat([]byte("x"), 1<<16)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var buffer bytes.Buffer
			if err := WriteFrame(&buffer, test.payload); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			got, err := ReadFrame(&buffer)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if !bytes.Equal(got, test.payload) {
				t.Errorf("payload: got %q, want %q", got, test.payload)
			}
		})
	}
}

func TestReadFrameSequence(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	payloads := [][]byte{
		[]byte(`{"status":"success","cmd":"response-follows"}`),
		[]byte(`{"text":"Hi there"}`),
	}
	for _, payload := range payloads {
		if err := WriteFrame(&buffer, payload); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for index, want := range payloads {
		got, err := ReadFrame(&buffer)
		if err != nil {
			t.Fatalf("ReadFrame[%d]: %v", index, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame[%d]: got %q, want %q", index, got, want)
		}
	}
	if _, err := ReadFrame(&buffer); err != io.EOF {
		t.Errorf("ReadFrame on drained buffer: got %v, want io.EOF", err)
	}
}

func TestReadFrameHeaderDeclaresOversizedPayload(t *testing.T) {
	t.Parallel()
	header := []byte{0xff, 0xff, 0xff, 0xff}
	_, err := ReadFrame(bytes.NewReader(header))
	if err == nil {
		t.Fatal("expected error for oversized payload length")
	}
	if !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReadFramePeerClosesMidFrame(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, []byte("complete payload")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	// Truncate mid-payload: header promises more bytes than arrive.
	truncated := buffer.Bytes()[:buffer.Len()-5]
	_, err := ReadFrame(bytes.NewReader(truncated))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("truncated payload: got %v, want ErrConnectionClosed", err)
	}

	// Truncate mid-header.
	_, err = ReadFrame(bytes.NewReader(truncated[:2]))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("truncated header: got %v, want ErrConnectionClosed", err)
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	err := WriteFrame(&buffer, make([]byte, maxPayloadLength+1))
	if err == nil {
		t.Fatal("expected error for oversized payload")
	}
	if buffer.Len() != 0 {
		t.Errorf("oversized write left %d bytes in buffer", buffer.Len())
	}
}
