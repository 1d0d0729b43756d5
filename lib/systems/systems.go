// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// Package systems provides the predefined system-prompt library.
//
// Prompts are authored on disk as a JSONC file (JSON extended with //
// line comments, /* block comments */, and trailing commas) mapping a
// short name to the prompt text:
//
//	{
//	  // terse answers for quick lookups
//	  "terse": "Answer in at most two sentences.",
//	  "reviewer": "You are a meticulous code reviewer.",
//	}
//
// The CLI resolves --system arguments through this library first, so
// "vern new work --system reviewer" expands the named prompt while an
// unrecognized name passes through as literal prompt text.
package systems

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/jsonc"
)

// Library is a named collection of system prompts.
type Library struct {
	prompts map[string]string
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Library.
func Parse(data []byte) (*Library, error) {
	stripped := jsonc.ToJSON(data)

	var prompts map[string]string
	if err := json.Unmarshal(stripped, &prompts); err != nil {
		return nil, fmt.Errorf("parsing system prompt library: %w", err)
	}
	return &Library{prompts: prompts}, nil
}

// ReadFile reads a JSONC prompt library from disk. A missing file is
// not an error: it yields an empty library, since the library is an
// optional convenience.
func ReadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Library{prompts: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	library, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return library, nil
}

// Resolve maps a prompt name to its text. Unknown names pass through
// unchanged so callers can hand in literal prompt text.
func (library *Library) Resolve(nameOrText string) string {
	if prompt, ok := library.prompts[nameOrText]; ok {
		return prompt
	}
	return nameOrText
}

// Names returns the defined prompt names, sorted.
func (library *Library) Names() []string {
	names := make([]string, 0, len(library.prompts))
	for name := range library.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
