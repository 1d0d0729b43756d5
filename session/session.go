// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vern-tools/vern/lib/llm"
)

const (
	// dirPrefix names session directories under the data root.
	dirPrefix = "session-"

	systemFile       = "system.json"
	conversationFile = "conversation.json"
	modelFile        = "model"
)

// Session is the in-memory form of one conversation. Fields are
// snapshots: callers get copies from [Store.Load] and mutate through
// Store methods, never through the struct.
type Session struct {
	// SID is the session identifier (the directory name minus prefix).
	SID string

	// SystemPrompt steers the model for every exchange in the session.
	SystemPrompt string

	// Model is the provider model identifier.
	Model string

	// Messages is the conversation history, oldest first.
	Messages []llm.Message
}

// Info is one row of a session listing.
type Info struct {
	SID string

	// SystemPreview is the first line of the system prompt, truncated
	// to at most 70 runes.
	SystemPreview string
}

// previewLimit bounds SystemPreview in runes.
const previewLimit = 70

func preview(systemPrompt string) string {
	flat := strings.Join(strings.Fields(systemPrompt), " ")
	runes := []rune(flat)
	if len(runes) > previewLimit {
		return string(runes[:previewLimit])
	}
	return flat
}

// writeFileAtomic writes data to path via a temporary file in the
// same directory, fsyncing before the rename so readers never see a
// partial write. Files are created with mode 0600.
func writeFileAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	// Write, sync, close, rename — in that order. If any step fails,
	// remove the temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming file into place: %w", err)
	}
	return nil
}

func writeJSONAtomic(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	return writeFileAtomic(path, data)
}

// persistSystem, persistConversation, and persistModel each write one
// concern to the session directory.
func persistSystem(dir, systemPrompt string) error {
	return writeJSONAtomic(filepath.Join(dir, systemFile), systemPrompt)
}

func persistConversation(dir string, messages []llm.Message) error {
	if messages == nil {
		messages = []llm.Message{}
	}
	return writeJSONAtomic(filepath.Join(dir, conversationFile), messages)
}

func persistModel(dir, model string) error {
	return writeFileAtomic(filepath.Join(dir, modelFile), []byte(model+"\n"))
}
