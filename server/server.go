// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/vern-tools/vern/lib/config"
	"github.com/vern-tools/vern/lib/llm"
	"github.com/vern-tools/vern/session"
)

// Server accepts framed requests over TCP and executes them against
// the session store and the LLM provider.
type Server struct {
	cfg      *config.Config
	store    *session.Store
	provider llm.Provider
	log      *slog.Logger

	listener net.Listener
	// semaphore bounds concurrently handled connections.
	semaphore chan struct{}
	// stop closes the listener exactly once; triggered by context
	// cancellation or the exit command.
	stop     func()
	handlers sync.WaitGroup
}

// New creates a server. Call [Server.Listen] to bind and then
// [Server.Serve] to run the accept loop.
func New(cfg *config.Config, store *session.Store, provider llm.Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		provider:  provider,
		log:       logger,
		semaphore: make(chan struct{}, cfg.Server.MaxConnections),
	}
}

// Listen binds the configured address and publishes the discovery
// file. With port 0 the OS picks; the discovery file carries the
// actual bound port.
func (server *Server) Listen() error {
	address := net.JoinHostPort(server.cfg.Network.Host, strconv.Itoa(server.cfg.Network.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("binding %s: %w", address, err)
	}
	server.listener = listener

	port := listener.Addr().(*net.TCPAddr).Port
	discovery := config.Discovery{Host: server.cfg.Network.Host, Port: port}
	if err := config.WriteDiscovery(server.cfg.DiscoveryFile(), discovery); err != nil {
		listener.Close()
		return err
	}

	server.log.Info("listening", "address", listener.Addr().String())
	return nil
}

// Addr returns the bound address. Only valid after [Server.Listen].
func (server *Server) Addr() net.Addr {
	return server.listener.Addr()
}

// Serve runs the accept loop until the context is canceled or an
// exit command arrives, then drains in-flight handlers and removes
// the discovery file. Returns nil on a clean shutdown.
func (server *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var once sync.Once
	server.stop = func() {
		once.Do(func() {
			cancel()
			server.listener.Close()
		})
	}
	// Closing the listener is what actually unblocks Accept; do it as
	// soon as the context dies.
	go func() {
		<-ctx.Done()
		server.stop()
	}()

	defer func() {
		server.handlers.Wait()
		if err := os.Remove(server.cfg.DiscoveryFile()); err != nil && !os.IsNotExist(err) {
			server.log.Warn("removing discovery file", "error", err)
		}
	}()

	for {
		// Admission control happens before Accept so overload waits in
		// the kernel backlog instead of in handler goroutines.
		select {
		case server.semaphore <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		connection, err := server.listener.Accept()
		if err != nil {
			<-server.semaphore
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			server.log.Warn("accept failed, continuing", "error", err)
			continue
		}

		server.handlers.Add(1)
		go func() {
			defer server.handlers.Done()
			defer func() { <-server.semaphore }()
			server.handleConnection(ctx, connection)
		}()
	}
}
