// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the synchronous wire driver the CLI uses
// to talk to the vern server: one connection, one request frame, one
// acknowledgement frame, and optionally one completion frame.
package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vern-tools/vern/lib/config"
	"github.com/vern-tools/vern/protocol"
)

// ErrServerNotRunning reports that no server could be reached: the
// discovery file is absent or the address in it refused the
// connection. The CLI turns this into a "start the server first"
// message instead of a raw dial error.
var ErrServerNotRunning = errors.New("vern server is not running")

// defaultTimeout bounds one full request cycle, including the
// provider call the server makes on our behalf.
const defaultTimeout = 5 * time.Minute

// Driver executes framed requests against the server. It is cheap to
// construct and safe for sequential reuse; each request opens its own
// connection.
type Driver struct {
	address string
	cid     string
	timeout time.Duration
}

// New locates the server through the discovery file and returns a
// driver identified by a fresh client UUID. Returns
// [ErrServerNotRunning] when the discovery file does not exist.
func New(cfg *config.Config) (*Driver, error) {
	discovery, err := config.ReadDiscovery(cfg.DiscoveryFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrServerNotRunning
		}
		return nil, err
	}
	return &Driver{
		address: discovery.Addr(),
		cid:     uuid.NewString(),
		timeout: defaultTimeout,
	}, nil
}

// NewForAddress returns a driver for an explicit host:port, bypassing
// discovery. Used by tests and the exit path.
func NewForAddress(address string) *Driver {
	return &Driver{
		address: address,
		cid:     uuid.NewString(),
		timeout: defaultTimeout,
	}
}

// CID returns the driver's client identifier.
func (driver *Driver) CID() string {
	return driver.cid
}

// Do executes one request. The returned completion is non-nil only
// when the server announced a payload frame. A malformed
// acknowledgement comes back as a synthetic error response, not an
// error return; error returns are reserved for transport failures.
func (driver *Driver) Do(request protocol.Request) (protocol.Response, *protocol.Completion, error) {
	request.CID = driver.cid

	connection, err := net.DialTimeout("tcp", driver.address, 10*time.Second)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return protocol.Response{}, nil, ErrServerNotRunning
		}
		return protocol.Response{}, nil, fmt.Errorf("connecting to %s: %w", driver.address, err)
	}
	defer connection.Close()
	connection.SetDeadline(time.Now().Add(driver.timeout))

	if err := protocol.WriteJSONFrame(connection, request); err != nil {
		return protocol.Response{}, nil, fmt.Errorf("sending request: %w", err)
	}

	payload, err := protocol.ReadFrame(connection)
	if err != nil {
		return protocol.Response{}, nil, fmt.Errorf("reading response: %w", err)
	}
	response := protocol.DecodeResponse(payload)
	if response.Cmd != protocol.CmdResponseFollows {
		return response, nil, nil
	}

	payload, err = protocol.ReadFrame(connection)
	if err != nil {
		return protocol.Response{}, nil, fmt.Errorf("reading completion: %w", err)
	}
	completion, err := protocol.DecodeCompletion(payload)
	if err != nil {
		// Same stance as a malformed ack: report it, don't fail the
		// transport.
		return protocol.Response{
			CID:    request.CID,
			SID:    request.SID,
			Status: protocol.StatusError,
			Cmd:    protocol.ErrCodeInvalidRequest,
			Data:   "malformed completion from server",
		}, nil, nil
	}
	return response, &completion, nil
}
