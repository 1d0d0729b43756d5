// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/vern-tools/vern/client"
	"github.com/vern-tools/vern/cmd/vern/cli"
	"github.com/vern-tools/vern/lib/config"
	"github.com/vern-tools/vern/lib/systems"
	"github.com/vern-tools/vern/protocol"
)

// connect loads the configuration and locates the server.
func connect() (*config.Config, *client.Driver, error) {
	cfg, err := config.LoadOrDefault()
	if err != nil {
		return nil, nil, err
	}
	driver, err := client.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, driver, nil
}

// checkResponse turns a server error response into a client error.
func checkResponse(response protocol.Response) error {
	if response.OK() {
		return nil
	}
	return fmt.Errorf("%s: %s", response.Cmd, response.Data)
}

// resolveSystem expands a system prompt name through the prompt
// library; unrecognized names pass through as literal text.
func resolveSystem(cfg *config.Config, nameOrText string) (string, error) {
	if nameOrText == "" {
		return "", nil
	}
	library, err := systems.ReadFile(cfg.SystemsFile())
	if err != nil {
		return "", err
	}
	return library.Resolve(nameOrText), nil
}

func newCommand() *cli.Command {
	var systemPrompt, model string
	return &cli.Command{
		Name:    "new",
		Summary: "Create a named session",
		Usage:   "vern new <session> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("new", pflag.ContinueOnError)
			flags.StringVar(&systemPrompt, "system", "", "system prompt (text or library name)")
			flags.StringVar(&model, "model", "", "model for this session")
			return flags
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: vern new <session>")
			}
			cfg, driver, err := connect()
			if err != nil {
				return err
			}
			resolved, err := resolveSystem(cfg, systemPrompt)
			if err != nil {
				return err
			}
			response, _, err := driver.Do(protocol.Request{
				SID:    args[0],
				Cmd:    protocol.CmdNewSession,
				System: resolved,
				Model:  model,
			})
			if err != nil {
				return err
			}
			return checkResponse(response)
		},
	}
}

func useCommand() *cli.Command {
	return &cli.Command{
		Name:    "use",
		Summary: "Load a session, optionally running a query against it",
		Usage:   "vern use <session> [query...]",
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: vern use <session> [query...]")
			}
			_, driver, err := connect()
			if err != nil {
				return err
			}
			response, completion, err := driver.Do(protocol.Request{
				SID:  args[0],
				Cmd:  protocol.CmdUseSession,
				Data: strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			if err := checkResponse(response); err != nil {
				return err
			}
			if completion != nil {
				return displayCompletion(completion, displayOptions{})
			}
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Summary: "List sessions with system-prompt previews",
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			_, driver, err := connect()
			if err != nil {
				return err
			}
			response, _, err := driver.Do(protocol.Request{Cmd: protocol.CmdListSessions})
			if err != nil {
				return err
			}
			if err := checkResponse(response); err != nil {
				return err
			}
			if strings.TrimSpace(response.Data) == "" {
				fmt.Println("no sessions")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			for _, line := range strings.Split(strings.TrimRight(response.Data, "\n"), "\n") {
				fmt.Fprintln(tw, line)
			}
			return tw.Flush()
		},
	}
}

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:    "models",
		Summary: "List models available from the provider",
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			_, driver, err := connect()
			if err != nil {
				return err
			}
			response, _, err := driver.Do(protocol.Request{Cmd: protocol.CmdListModels})
			if err != nil {
				return err
			}
			if err := checkResponse(response); err != nil {
				return err
			}
			for _, model := range strings.Fields(response.Data) {
				fmt.Println(model)
			}
			return nil
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:    "reset",
		Summary: "Clear a session's history, keeping system prompt and model",
		Usage:   "vern reset <session>",
		Run:     sessionOnlyRun("reset", protocol.CmdReset),
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:    "rm",
		Summary: "Move a session to the trash",
		Usage:   "vern rm <session>",
		Run:     sessionOnlyRun("rm", protocol.CmdRemoveSession),
	}
}

// sessionOnlyRun builds a Run for commands that take exactly a
// session argument and no payload.
func sessionOnlyRun(name string, command protocol.Command) func(context.Context, []string, *slog.Logger) error {
	return func(_ context.Context, args []string, _ *slog.Logger) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: vern %s <session>", name)
		}
		_, driver, err := connect()
		if err != nil {
			return err
		}
		response, _, err := driver.Do(protocol.Request{SID: args[0], Cmd: command})
		if err != nil {
			return err
		}
		return checkResponse(response)
	}
}

func setModelCommand() *cli.Command {
	return &cli.Command{
		Name:    "set-model",
		Summary: "Change a session's model",
		Usage:   "vern set-model <session> <model>",
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: vern set-model <session> <model>")
			}
			_, driver, err := connect()
			if err != nil {
				return err
			}
			response, _, err := driver.Do(protocol.Request{
				SID:   args[0],
				Cmd:   protocol.CmdSetModel,
				Model: args[1],
			})
			if err != nil {
				return err
			}
			return checkResponse(response)
		},
	}
}

func setSystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "set-system",
		Summary: "Change a session's system prompt",
		Usage:   "vern set-system <session> <prompt-or-name...>",
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) < 2 {
				return fmt.Errorf("usage: vern set-system <session> <prompt-or-name...>")
			}
			cfg, driver, err := connect()
			if err != nil {
				return err
			}
			resolved, err := resolveSystem(cfg, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			response, _, err := driver.Do(protocol.Request{
				SID:    args[0],
				Cmd:    protocol.CmdSetSystem,
				System: resolved,
			})
			if err != nil {
				return err
			}
			return checkResponse(response)
		},
	}
}

func exitCommand() *cli.Command {
	return &cli.Command{
		Name:    "exit",
		Summary: "Stop the vern server",
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			_, driver, err := connect()
			if err != nil {
				return err
			}
			response, _, err := driver.Do(protocol.Request{Cmd: protocol.CmdExit})
			if err != nil {
				return err
			}
			return checkResponse(response)
		},
	}
}
