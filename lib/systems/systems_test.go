// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package systems

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseWithCommentsAndTrailingCommas(t *testing.T) {
	t.Parallel()

	library, err := Parse([]byte(`{
		// quick lookups
		"terse": "Answer in at most two sentences.",
		/* code review persona */
		"reviewer": "You are a meticulous code reviewer.",
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := library.Resolve("terse"); got != "Answer in at most two sentences." {
		t.Errorf("Resolve(terse) = %q", got)
	}
	names := library.Names()
	if len(names) != 2 || names[0] != "reviewer" || names[1] != "terse" {
		t.Errorf("Names = %v", names)
	}
}

func TestResolvePassesThroughLiteralText(t *testing.T) {
	t.Parallel()

	library, err := Parse([]byte(`{"terse": "Short."}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	literal := "You are a pirate."
	if got := library.Resolve(literal); got != literal {
		t.Errorf("Resolve(literal) = %q, want pass-through", got)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte(`{"unterminated": `)); err == nil {
		t.Fatal("expected error for malformed library")
	}
}

func TestReadFileMissingIsEmpty(t *testing.T) {
	t.Parallel()

	library, err := ReadFile(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if names := library.Names(); len(names) != 0 {
		t.Errorf("Names = %v, want empty", names)
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "systems.jsonc")
	content := `{
		"pirate": "You are a pirate.", // arrr
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing library: %v", err)
	}
	library, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got := library.Resolve("pirate"); got != "You are a pirate." {
		t.Errorf("Resolve(pirate) = %q", got)
	}
}
