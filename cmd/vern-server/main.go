// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// Vern-server is the long-running assistant daemon. It listens on a
// loopback TCP port, executes one framed command per connection
// against the on-disk session store, and forwards conversational
// queries to the configured LLM provider.
//
// On startup:
//  1. Loads configuration (--config flag, VERN_CONFIG, or defaults).
//  2. Opens the session store and the process-scoped trash directory.
//  3. Binds the listener and publishes the discovery file.
//  4. Serves until SIGINT/SIGTERM or a client's exit command.
//
// Shutdown drains in-flight connections, removes the discovery file,
// and empties the trash.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vern-tools/vern/lib/config"
	"github.com/vern-tools/vern/lib/llm"
	"github.com/vern-tools/vern/lib/version"
	"github.com/vern-tools/vern/server"
	"github.com/vern-tools/vern/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		debug       bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to vern.yaml (overrides VERN_CONFIG)")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("vern-server %s\n", version.Info())
		return nil
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	apiKey := os.Getenv(cfg.Server.APIKeyEnv)
	if apiKey == "" {
		return fmt.Errorf("%s is not set; the provider needs an API key", cfg.Server.APIKeyEnv)
	}
	provider := llm.NewOpenAI(&http.Client{Timeout: 5 * time.Minute},
		cfg.Server.ProviderBaseURL, apiKey)

	store, err := session.NewStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("emptying trash", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, store, provider, logger)
	if err := srv.Listen(); err != nil {
		return err
	}

	logger.Info("vern-server started",
		"version", version.Short(),
		"address", srv.Addr().String(),
		"data", cfg.Paths.Data,
		"model", cfg.Session.DefaultModel)

	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	logger.Info("vern-server stopped")
	return nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.LoadOrDefault()
}
