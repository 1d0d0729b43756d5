// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/vern-tools/vern/cmd/vern/cli"
	"github.com/vern-tools/vern/protocol"
)

func chatCommand() *cli.Command {
	var options displayOptions
	return &cli.Command{
		Name:    "chat",
		Summary: "Interactive conversation in a session",
		Usage:   "vern chat [session] [flags]",
		Description: `Start an interactive conversation. With a session argument the
conversation continues in that session; without one, an ephemeral
session tied to the parent shell is created (or resumed), so closing
and reopening the conversation from the same shell keeps its context.

Inside the conversation, lines starting with / are commands:

  /reset           clear the history
  /model <name>    switch the model
  /system <text>   replace the system prompt
  /quit            leave the conversation`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("chat", pflag.ContinueOnError)
			flags.BoolVar(&options.noMarkdown, "no-markdown", false, "print replies as plain text")
			flags.StringVar(&options.savePath, "save", "", "append replies to this file")
			return flags
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 1 {
				return fmt.Errorf("usage: vern chat [session]")
			}
			cfg, driver, err := connect()
			if err != nil {
				return err
			}

			var sid string
			if len(args) == 1 {
				sid = args[0]
				response, _, err := driver.Do(protocol.Request{SID: sid, Cmd: protocol.CmdUseSession})
				if err != nil {
					return err
				}
				if err := checkResponse(response); err != nil {
					return err
				}
			} else {
				// Ephemeral session keyed by the parent shell, so a new
				// chat from the same shell resumes where it left off.
				sid = fmt.Sprintf("ppid-%d", os.Getppid())
				response, _, err := driver.Do(protocol.Request{SID: sid, Cmd: protocol.CmdInit})
				if err != nil {
					return err
				}
				if err := checkResponse(response); err != nil {
					return err
				}
			}

			return runChatLoop(ctx, driver, cfg.HistoryFile(sid), sid, options, logger)
		},
	}
}

func runChatLoop(ctx context.Context, driver queryDriver, historyPath, sid string, options displayOptions, logger *slog.Logger) error {
	history, err := openHistory(historyPath)
	if err != nil {
		logger.Warn("history file unavailable", "error", err)
	}
	if history != nil {
		defer history.Close()
	}

	fmt.Printf("session %s (type /quit to leave)\n", sid)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Print("> ")
		if !scanner.Scan() {
			// EOF (ctrl-d) ends the conversation.
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if history != nil {
			fmt.Fprintln(history, line)
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runChatDirective(driver, sid, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		response, completion, err := driver.Do(protocol.Request{
			SID:  sid,
			Cmd:  protocol.CmdQuery,
			Data: line,
		})
		if err != nil {
			return err
		}
		if err := checkResponse(response); err != nil {
			// Server-side errors (token budget, provider failures) are
			// recoverable within the conversation.
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if completion == nil {
			fmt.Fprintln(os.Stderr, "error: server sent no completion")
			continue
		}
		if err := displayCompletion(completion, options); err != nil {
			return err
		}
	}
}

// queryDriver is the part of the client driver the chat loop needs;
// tests substitute a scripted implementation.
type queryDriver interface {
	Do(request protocol.Request) (protocol.Response, *protocol.Completion, error)
}

// runChatDirective handles a /-prefixed conversation command. Returns
// true when the conversation should end.
func runChatDirective(driver queryDriver, sid, line string) (bool, error) {
	directive, argument, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	argument = strings.TrimSpace(argument)

	switch directive {
	case "quit", "exit", "q":
		return true, nil
	case "reset":
		response, _, err := driver.Do(protocol.Request{SID: sid, Cmd: protocol.CmdReset})
		if err != nil {
			return false, err
		}
		return false, checkResponse(response)
	case "model":
		if argument == "" {
			return false, fmt.Errorf("usage: /model <name>")
		}
		response, _, err := driver.Do(protocol.Request{SID: sid, Cmd: protocol.CmdSetModel, Model: argument})
		if err != nil {
			return false, err
		}
		return false, checkResponse(response)
	case "system":
		if argument == "" {
			return false, fmt.Errorf("usage: /system <text>")
		}
		response, _, err := driver.Do(protocol.Request{SID: sid, Cmd: protocol.CmdSetSystem, System: argument})
		if err != nil {
			return false, err
		}
		return false, checkResponse(response)
	default:
		return false, fmt.Errorf("unknown command /%s", directive)
	}
}

func openHistory(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
}
