// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// frameHeaderLength is the fixed size of a frame header: 4 bytes of
// payload length, unsigned big-endian.
const frameHeaderLength = 4

// maxPayloadLength is the maximum allowed payload size. 16 MB is
// generous for JSON requests and model completions; a typical
// completion payload is well under 100 KB.
const maxPayloadLength = 16 * 1024 * 1024

// ErrConnectionClosed is returned by ReadFrame when the peer closes
// the connection before a complete frame has been delivered. A clean
// close before the first header byte surfaces as io.EOF instead, so
// callers can distinguish "no frame" from "torn frame".
var ErrConnectionClosed = errors.New("connection closed mid-frame")

// WriteFrame writes a framed payload to w. The frame format is:
// [4 bytes payload length, big-endian uint32] [payload].
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxPayloadLength {
		return fmt.Errorf("payload length %d exceeds maximum %d", len(payload), maxPayloadLength)
	}
	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one framed payload from r, blocking until the full
// length declared by the header has been received. Returns io.EOF when
// the peer closes before any header byte arrives, and a
// [ErrConnectionClosed]-wrapped error when the close happens mid-frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", ErrConnectionClosed)
	}
	payloadLength := binary.BigEndian.Uint32(header[:])
	if payloadLength > maxPayloadLength {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read frame payload: %w", ErrConnectionClosed)
		}
	}
	return payload, nil
}
