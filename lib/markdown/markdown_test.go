// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package markdown

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

// stripped renders markdown and returns ANSI-stripped visible text.
func stripped(input string, width int) string {
	return ansi.Strip(NewWithProfile(width, termenv.ANSI256).Render(input))
}

// raw renders markdown and returns the raw ANSI-styled output.
func raw(input string, width int) string {
	return NewWithProfile(width, termenv.ANSI256).Render(input)
}

func TestRenderEmpty(t *testing.T) {
	if result := raw("", 80); result != "" {
		t.Errorf("expected empty string for empty input, got %q", result)
	}
}

func TestParagraphReflow(t *testing.T) {
	// Source text hard-wrapped at ~40 columns.
	input := "This is a paragraph that was\nwritten at a narrow width with\nhard line breaks embedded in it."
	result := stripped(input, 120)

	if strings.Contains(result, "\n") {
		t.Errorf("expected no newlines at width=120, got:\n%s", result)
	}
	if !strings.Contains(result, "was written at") {
		t.Errorf("expected soft break converted to space, got:\n%s", result)
	}
}

func TestParagraphWrapNarrow(t *testing.T) {
	input := "This is a paragraph that should be wrapped at the target width."
	result := stripped(input, 30)

	for _, line := range strings.Split(result, "\n") {
		if len(line) > 30 {
			t.Errorf("line exceeds width 30: %q (len=%d)", line, len(line))
		}
	}
}

func TestHardLineBreak(t *testing.T) {
	// Two trailing spaces create a hard line break in CommonMark.
	input := "Line one  \nLine two"
	result := stripped(input, 80)

	if !strings.Contains(result, "Line one\nLine two") {
		t.Errorf("expected hard line break preserved, got:\n%s", result)
	}
}

func TestHeadings(t *testing.T) {
	input := "# Heading One\n\n## Heading Two\n\n### Heading Three"
	result := stripped(input, 80)

	for _, heading := range []string{"Heading One", "Heading Two", "Heading Three"} {
		if !strings.Contains(result, heading) {
			t.Errorf("missing %q in output:\n%s", heading, result)
		}
	}
	if raw(input, 80) == result {
		t.Error("expected ANSI styling in heading output")
	}
}

func TestEmphasisStyling(t *testing.T) {
	input := "This is *italic* and **bold** text."
	result := stripped(input, 80)

	if !strings.Contains(result, "italic") || !strings.Contains(result, "bold") {
		t.Errorf("emphasis text missing from output:\n%s", result)
	}
	if strings.Contains(result, "*") {
		t.Errorf("markdown markers leaked into output:\n%s", result)
	}
}

func TestUnorderedList(t *testing.T) {
	input := "- first\n- second\n- third"
	result := stripped(input, 80)

	for _, item := range []string{"- first", "- second", "- third"} {
		if !strings.Contains(result, item) {
			t.Errorf("missing %q in output:\n%s", item, result)
		}
	}
}

func TestOrderedList(t *testing.T) {
	input := "1. first\n2. second"
	result := stripped(input, 80)

	if !strings.Contains(result, "1. first") || !strings.Contains(result, "2. second") {
		t.Errorf("ordered list markers missing:\n%s", result)
	}
}

func TestNestedListContinuationIndent(t *testing.T) {
	input := "- outer item that is long enough to wrap onto a continuation line at a narrow width\n  - inner"
	result := stripped(input, 40)

	lines := strings.Split(result, "\n")
	if len(lines) < 2 {
		t.Fatalf("expected wrapped output, got:\n%s", result)
	}
	// Continuation lines of the outer item are indented past the
	// bullet.
	if !strings.HasPrefix(lines[1], "  ") {
		t.Errorf("continuation line not indented: %q", lines[1])
	}
}

func TestBlockquotePrefix(t *testing.T) {
	input := "> quoted text"
	result := stripped(input, 80)

	if !strings.Contains(result, "│ quoted text") {
		t.Errorf("blockquote prefix missing:\n%s", result)
	}
}

func TestFencedCodeBlockPreserved(t *testing.T) {
	input := "```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```"
	result := stripped(input, 80)

	// Code lines keep their original line structure; no reflow.
	if !strings.Contains(result, "func main() {") {
		t.Errorf("code content missing:\n%s", result)
	}
	if !strings.Contains(result, "\tprintln(\"hi\")") {
		t.Errorf("code indentation lost:\n%s", result)
	}
}

func TestInlineCode(t *testing.T) {
	input := "Run `vern list` to see sessions."
	result := stripped(input, 80)

	if !strings.Contains(result, "vern list") {
		t.Errorf("inline code missing:\n%s", result)
	}
	if strings.Contains(result, "`") {
		t.Errorf("backticks leaked into output:\n%s", result)
	}
}

func TestLinkShowsURL(t *testing.T) {
	input := "See [the docs](https://example.com/docs)."
	result := stripped(input, 120)

	if !strings.Contains(result, "the docs") {
		t.Errorf("link text missing:\n%s", result)
	}
	if !strings.Contains(result, "(https://example.com/docs)") {
		t.Errorf("link target missing:\n%s", result)
	}
}

func TestTableColumns(t *testing.T) {
	input := "| name | value |\n|---|---|\n| alpha | 1 |\n| beta | 22 |"
	result := stripped(input, 80)

	if !strings.Contains(result, "name") || !strings.Contains(result, "value") {
		t.Errorf("table header missing:\n%s", result)
	}
	if !strings.Contains(result, "alpha") || !strings.Contains(result, "beta") {
		t.Errorf("table body missing:\n%s", result)
	}
	if !strings.Contains(result, "─") {
		t.Errorf("header separator missing:\n%s", result)
	}
}

func TestTaskList(t *testing.T) {
	input := "- [x] done\n- [ ] todo"
	result := stripped(input, 80)

	if !strings.Contains(result, "[x] done") || !strings.Contains(result, "[ ] todo") {
		t.Errorf("task checkboxes missing:\n%s", result)
	}
}

func TestThematicBreak(t *testing.T) {
	input := "above\n\n---\n\nbelow"
	result := stripped(input, 40)

	if !strings.Contains(result, strings.Repeat("─", 40)) {
		t.Errorf("rule missing:\n%s", result)
	}
}

func TestMinimumWidthClamped(t *testing.T) {
	renderer := NewWithProfile(5, termenv.Ascii)
	result := renderer.Render("short text")
	if result == "" {
		t.Fatal("expected output at clamped width")
	}
}
