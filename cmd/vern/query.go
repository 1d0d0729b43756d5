// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/vern-tools/vern/cmd/vern/cli"
	"github.com/vern-tools/vern/lib/markdown"
	"github.com/vern-tools/vern/protocol"
)

type displayOptions struct {
	// noMarkdown forces plain text output even on a terminal.
	noMarkdown bool

	// savePath, when set, appends the raw completion text to a file.
	savePath string
}

// displayCompletion renders a completion to stdout. Markdown styling
// applies only when stdout is a terminal; piped output stays plain so
// it composes with other tools.
func displayCompletion(completion *protocol.Completion, options displayOptions) error {
	text := strings.TrimRight(completion.Text, "\n")

	if !options.noMarkdown && term.IsTerminal(int(os.Stdout.Fd())) {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || width <= 0 {
			width = 80
		}
		fmt.Println(markdown.New(width).Render(text))
	} else {
		fmt.Println(text)
	}

	if options.savePath != "" {
		if err := appendResponse(options.savePath, completion); err != nil {
			return err
		}
	}
	return nil
}

// appendResponse appends a completion to the responses file with a
// timestamped separator line.
func appendResponse(path string, completion *protocol.Completion) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("opening responses file: %w", err)
	}
	defer file.Close()

	header := fmt.Sprintf("--- %s model=%s tokens=%d/%d\n",
		time.Now().UTC().Format(time.RFC3339), completion.Model,
		completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	if _, err := file.WriteString(header + completion.Text + "\n\n"); err != nil {
		return fmt.Errorf("appending response: %w", err)
	}
	return nil
}

// queryText assembles the query from positional args, falling back to
// stdin when no args were given (pipe and heredoc use).
func queryText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no query given (pass text as arguments or pipe it on stdin)")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("empty query on stdin")
	}
	return text, nil
}

func askCommand() *cli.Command {
	var options displayOptions
	return &cli.Command{
		Name:    "ask",
		Summary: "Run a query in a session's conversation",
		Usage:   "vern ask <session> [query...] [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("ask", pflag.ContinueOnError)
			flags.BoolVar(&options.noMarkdown, "no-markdown", false, "print the reply as plain text")
			flags.StringVar(&options.savePath, "save", "", "append the reply to this file")
			return flags
		},
		Examples: []cli.Example{
			{Description: "Ask with the query as arguments", Command: "vern ask work \"explain this stack trace\""},
			{Description: "Pipe the query on stdin", Command: "git diff | vern ask work"},
		},
		Run: runQueryCommand(protocol.CmdQuery, &options),
	}
}

func oneshotCommand() *cli.Command {
	var options displayOptions
	return &cli.Command{
		Name:    "oneshot",
		Summary: "Run a query without adding it to the conversation",
		Usage:   "vern oneshot <session> [query...] [flags]",
		Description: `Run a one-shot query: the model sees only the session's system
prompt and this message. The reply is saved beside the session but
the conversation history is untouched, so a throwaway question does
not pollute later context.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("oneshot", pflag.ContinueOnError)
			flags.BoolVar(&options.noMarkdown, "no-markdown", false, "print the reply as plain text")
			flags.StringVar(&options.savePath, "save", "", "append the reply to this file")
			return flags
		},
		Run: runQueryCommand(protocol.CmdOneshotQuery, &options),
	}
}

func runQueryCommand(command protocol.Command, options *displayOptions) func(context.Context, []string, *slog.Logger) error {
	return func(_ context.Context, args []string, _ *slog.Logger) error {
		if len(args) < 1 {
			return fmt.Errorf("usage: vern %s <session> [query...]", command)
		}
		text, err := queryText(args[1:])
		if err != nil {
			return err
		}
		_, driver, err := connect()
		if err != nil {
			return err
		}
		response, completion, err := driver.Do(protocol.Request{
			SID:  args[0],
			Cmd:  command,
			Data: text,
		})
		if err != nil {
			return err
		}
		if err := checkResponse(response); err != nil {
			return err
		}
		if completion == nil {
			return fmt.Errorf("server acknowledged but sent no completion")
		}
		return displayCompletion(completion, *options)
	}
}
