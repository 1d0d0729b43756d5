// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// The vern CLI talks to the vern server: manage conversation
// sessions, run queries against them, and render the replies in the
// terminal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vern-tools/vern/cmd/vern/cli"
	"github.com/vern-tools/vern/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := slog.LevelWarn
	if os.Getenv("VERN_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return rootCommand().Execute(ctx, os.Args[1:], logger)
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "vern",
		Description: `vern: a session-addressed personal assistant.

Conversations live in named sessions on the vern server; each session
keeps its own system prompt, model selection, and history.`,
		Subcommands: []*cli.Command{
			newCommand(),
			useCommand(),
			askCommand(),
			oneshotCommand(),
			chatCommand(),
			listCommand(),
			modelsCommand(),
			resetCommand(),
			setModelCommand(),
			setSystemCommand(),
			removeCommand(),
			exitCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Printf("vern %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Create a session with a named system prompt",
				Command:     "vern new work --system reviewer",
			},
			{
				Description: "Ask a question in an existing session",
				Command:     "vern ask work \"why does this test flake?\"",
			},
			{
				Description: "Pipe a file through a one-shot query",
				Command:     "cat main.go | vern oneshot work \"review this\"",
			},
			{
				Description: "Start an interactive conversation",
				Command:     "vern chat work",
			},
			{
				Description: "List sessions with their system prompts",
				Command:     "vern list",
			},
		},
	}
}
