// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// Package markdown renders markdown as styled terminal text. The CLI
// uses it to display assistant replies: headings, emphasis, lists,
// blockquotes, tables, and syntax-highlighted code blocks, word-wrapped
// to the terminal width. Soft line breaks reflow, so hard-wrapped
// source text adapts to any width.
package markdown

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Theme is the color palette for rendered output.
type Theme struct {
	// Normal is the body text color.
	Normal lipgloss.Color

	// Faint is for de-emphasized text: inline code, URLs, unhighlighted
	// code blocks.
	Faint lipgloss.Color

	// Header colors level-1 and level-2 headings.
	Header lipgloss.Color

	// Border colors rules and table separators.
	Border lipgloss.Color

	// Accent marks completed task-list checkboxes.
	Accent lipgloss.Color

	// ChromaStyle names the chroma style used for fenced code blocks.
	ChromaStyle string
}

// DefaultTheme is tuned for dark terminals.
func DefaultTheme() Theme {
	return Theme{
		Normal:      lipgloss.Color("252"),
		Faint:       lipgloss.Color("244"),
		Header:      lipgloss.Color("81"),
		Border:      lipgloss.Color("240"),
		Accent:      lipgloss.Color("114"),
		ChromaStyle: "monokai",
	}
}

// The parser configuration never changes and the goldmark parser is
// safe to share; parsing creates per-call state via Parse(reader).
var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func parser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return parserInstance
}

// Renderer renders markdown at a fixed width with a fixed theme. It
// is safe for sequential reuse; each Render call carries its own walk
// state.
type Renderer struct {
	theme   Theme
	width   int
	profile termenv.Profile
}

// New creates a renderer that detects the color capability of stdout.
// Width is the wrap column; values below 20 are raised to 20.
func New(width int) *Renderer {
	return NewWithProfile(width, termenv.NewOutput(os.Stdout).Profile)
}

// NewWithProfile creates a renderer with an explicit color profile.
// Tests use termenv.Ascii for deterministic plain output.
func NewWithProfile(width int, profile termenv.Profile) *Renderer {
	if width < 20 {
		width = 20
	}
	return &Renderer{theme: DefaultTheme(), width: width, profile: profile}
}

// Render parses input as markdown and returns styled terminal text
// without a trailing newline.
func (renderer *Renderer) Render(input string) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	document := parser().Parser().Parse(text.NewReader(source))

	// lipgloss re-detects the profile from the environment unless it is
	// set explicitly on the renderer.
	lipRenderer := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(renderer.profile))
	lipRenderer.SetColorProfile(renderer.profile)

	w := &walker{
		source: source,
		theme:  renderer.theme,
		width:  renderer.width,
		styles: lipRenderer,
	}
	ast.Walk(document, w.walk)

	return strings.TrimRight(w.output.String(), "\n")
}

// wrapBreakpoints are the characters ansi.Wrap may break a line at,
// beyond plain spaces.
const wrapBreakpoints = " ,.;-+|"

// walker walks a goldmark AST and produces styled terminal text. It
// uses a direct ast.Walk rather than goldmark's renderer interface
// because terminal rendering needs accumulate-then-wrap semantics:
// paragraph inline content collects in a buffer and gets word-wrapped
// as a unit when the paragraph closes.
type walker struct {
	source []byte
	theme  Theme
	width  int
	styles *lipgloss.Renderer

	// Final rendered output.
	output strings.Builder

	// Inline accumulator: collects styled text fragments within a
	// paragraph, heading, or other inline-containing block. Flushed
	// with word-wrap when the containing block closes.
	inline strings.Builder

	// Prefix stack for nested block containers (blockquotes, lists).
	prefixStack     []prefixLevel
	linePrefix      string // Concatenation of all prefix texts.
	linePrefixWidth int    // Sum of all visible prefix widths.

	// Pending bullet: replaces linePrefix for the very next emitted
	// line, then clears. Used for list item bullets/numbers.
	pendingBullet string

	// Inline style counters: incremented by Emphasis/Strikethrough
	// entering, decremented on leaving. Counters (not booleans) handle
	// nested emphasis correctly.
	boldCount          int
	italicCount        int
	strikethroughCount int

	// List nesting state.
	listStack []listState

	// Trailing newlines at end of output, for blank line management.
	trailingNewlines int
}

type prefixLevel struct {
	text  string
	width int
}

type listState struct {
	ordered bool
	counter int
	tight   bool
}

func (w *walker) newStyle() lipgloss.Style {
	return w.styles.NewStyle()
}

// currentWidth returns the available content width after accounting
// for all nesting prefixes. Clamped to a minimum of 10 to prevent
// degenerate wrapping.
func (w *walker) currentWidth() int {
	width := w.width - w.linePrefixWidth
	if width < 10 {
		width = 10
	}
	return width
}

func (w *walker) pushPrefix(prefixText string, visibleWidth int) {
	w.prefixStack = append(w.prefixStack, prefixLevel{text: prefixText, width: visibleWidth})
	w.linePrefix += prefixText
	w.linePrefixWidth += visibleWidth
}

func (w *walker) popPrefix() {
	if len(w.prefixStack) == 0 {
		return
	}
	top := w.prefixStack[len(w.prefixStack)-1]
	w.prefixStack = w.prefixStack[:len(w.prefixStack)-1]
	w.linePrefix = w.linePrefix[:len(w.linePrefix)-len(top.text)]
	w.linePrefixWidth -= top.width
}

func (w *walker) inTightList() bool {
	if len(w.listStack) == 0 {
		return false
	}
	return w.listStack[len(w.listStack)-1].tight
}

// writeOutput appends text to the output buffer, tracking trailing
// newlines for blank line management.
func (w *walker) writeOutput(s string) {
	if s == "" {
		return
	}
	w.output.WriteString(s)

	newTrailing := 0
	entirelyNewlines := true
	for index := len(s) - 1; index >= 0; index-- {
		if s[index] == '\n' {
			newTrailing++
		} else {
			entirelyNewlines = false
			break
		}
	}
	if entirelyNewlines {
		w.trailingNewlines += newTrailing
	} else {
		w.trailingNewlines = newTrailing
	}
}

func (w *walker) ensureNewline() {
	if w.trailingNewlines < 1 {
		w.writeOutput("\n")
	}
}

func (w *walker) ensureBlankLine() {
	for w.trailingNewlines < 2 {
		w.writeOutput("\n")
	}
}

// consumeLinePrefix returns the prefix for the current line. If a
// pending bullet is set, returns and clears it (used for the first
// line of a list item).
func (w *walker) consumeLinePrefix() string {
	if w.pendingBullet != "" {
		bullet := w.pendingBullet
		w.pendingBullet = ""
		return bullet
	}
	return w.linePrefix
}

// applyPrefixes prepends the appropriate line prefix to each line of
// text. The first line uses the pending bullet (if set), subsequent
// lines use the regular line prefix.
func (w *walker) applyPrefixes(content string) string {
	lines := strings.Split(content, "\n")
	var result strings.Builder
	for index, line := range lines {
		if index == 0 {
			result.WriteString(w.consumeLinePrefix())
		} else {
			result.WriteString(w.linePrefix)
		}
		result.WriteString(line)
		if index < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}

// flushInline word-wraps the accumulated inline content to the
// current width, applies line prefixes, and returns the result.
func (w *walker) flushInline() string {
	content := w.inline.String()
	w.inline.Reset()
	if content == "" {
		return ""
	}
	content = ansi.Wrap(content, w.currentWidth(), wrapBreakpoints)
	return w.applyPrefixes(content)
}

// styledText applies the current inline style to a text string.
func (w *walker) styledText(content string) string {
	style := w.newStyle().Foreground(w.theme.Normal)
	if w.boldCount > 0 {
		style = style.Bold(true)
	}
	if w.italicCount > 0 {
		style = style.Italic(true)
	}
	if w.strikethroughCount > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

// renderInlineContent walks a node's children to collect inline
// content into a string. Saves and restores the inline buffer and
// style state so the caller's context is unaffected.
func (w *walker) renderInlineContent(node ast.Node) string {
	savedInline := w.inline.String()
	savedBold := w.boldCount
	savedItalic := w.italicCount
	savedStrikethrough := w.strikethroughCount

	w.inline.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, w.walk)
	}
	result := w.inline.String()

	w.inline.Reset()
	w.inline.WriteString(savedInline)
	w.boldCount = savedBold
	w.italicCount = savedItalic
	w.strikethroughCount = savedStrikethrough

	return result
}

// highlightCode uses chroma to syntax-highlight code. Returns
// ANSI-styled text on success, or faint plain text on failure
// (unknown language, chroma error).
func (w *walker) highlightCode(code, language string) string {
	if language == "" {
		return w.newStyle().Foreground(w.theme.Faint).Render(code)
	}
	var buffer strings.Builder
	if err := quick.Highlight(&buffer, code, language, "terminal256", w.theme.ChromaStyle); err != nil {
		return w.newStyle().Foreground(w.theme.Faint).Render(code)
	}
	return buffer.String()
}

func (w *walker) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {

	// Block nodes.
	case ast.KindDocument:
		// Nothing to do at either boundary.

	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			w.inline.Reset()
		} else {
			flushed := w.flushInline()
			if flushed != "" {
				w.writeOutput(flushed)
				w.ensureNewline()
				if !w.inTightList() {
					w.ensureBlankLine()
				}
			}
		}

	case ast.KindHeading:
		if entering {
			w.inline.Reset()
		} else {
			w.leaveHeading(node.(*ast.Heading))
		}

	case ast.KindFencedCodeBlock:
		if entering {
			w.renderFencedCodeBlock(node.(*ast.FencedCodeBlock))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			w.renderCodeBlock(node.(*ast.CodeBlock))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			w.pushPrefix("│ ", 2)
		} else {
			w.popPrefix()
			w.ensureBlankLine()
		}

	case ast.KindList:
		if entering {
			w.enterList(node.(*ast.List))
		} else {
			w.leaveList()
		}

	case ast.KindListItem:
		if entering {
			w.enterListItem()
		} else {
			w.leaveListItem()
		}

	case ast.KindThematicBreak:
		if entering {
			w.renderThematicBreak()
		}

	case ast.KindHTMLBlock:
		if entering {
			w.renderHTMLBlock(node.(*ast.HTMLBlock))
			return ast.WalkSkipChildren, nil
		}

	// Inline nodes.
	case ast.KindText:
		if entering {
			w.handleText(node.(*ast.Text))
		}

	case ast.KindString:
		if entering {
			str := node.(*ast.String)
			w.inline.WriteString(w.styledText(string(str.Value)))
		}

	case ast.KindEmphasis:
		w.handleEmphasis(node.(*ast.Emphasis), entering)

	case ast.KindCodeSpan:
		if entering {
			w.renderCodeSpan(node)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if entering {
			w.renderLink(node.(*ast.Link))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(w.source))
			w.inline.WriteString(w.newStyle().Foreground(w.theme.Faint).Render(url))
		}

	case ast.KindImage:
		if entering {
			w.renderImage(node.(*ast.Image))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindRawHTML:
		if entering {
			w.renderRawHTML(node.(*ast.RawHTML))
		}

	// GFM extension nodes.
	case extast.KindStrikethrough:
		if entering {
			w.strikethroughCount++
		} else {
			w.strikethroughCount--
		}

	case extast.KindTable:
		if entering {
			w.renderTable(node)
			return ast.WalkSkipChildren, nil
		}

	case extast.KindTaskCheckBox:
		if entering {
			checkbox := node.(*extast.TaskCheckBox)
			if checkbox.IsChecked {
				checked := w.newStyle().Foreground(w.theme.Accent)
				w.inline.WriteString(checked.Render("[x]") + " ")
			} else {
				w.inline.WriteString(w.styledText("[ ] "))
			}
		}
	}

	return ast.WalkContinue, nil
}

// --- Block-level handlers ---

func (w *walker) leaveHeading(heading *ast.Heading) {
	// Strip inline styling accumulated by styledText: the heading has
	// its own style that replaces it.
	content := ansi.Strip(w.inline.String())
	w.inline.Reset()
	if content == "" {
		return
	}

	style := w.newStyle().Bold(true)
	if heading.Level <= 2 {
		style = style.Foreground(w.theme.Header)
	} else {
		style = style.Foreground(w.theme.Normal)
	}

	wrapped := ansi.Wrap(style.Render(content), w.currentWidth(), wrapBreakpoints)
	flushed := w.applyPrefixes(wrapped)
	w.ensureBlankLine()
	w.writeOutput(flushed)
	w.ensureNewline()
	w.ensureBlankLine()
}

func (w *walker) renderFencedCodeBlock(node *ast.FencedCodeBlock) {
	language := string(node.Language(w.source))
	var code strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		code.Write(segment.Value(w.source))
	}

	highlighted := w.highlightCode(code.String(), language)
	w.ensureBlankLine()
	for _, line := range strings.Split(strings.TrimRight(highlighted, "\n"), "\n") {
		w.writeOutput(w.consumeLinePrefix() + line)
		w.ensureNewline()
	}
	w.ensureBlankLine()
}

func (w *walker) renderCodeBlock(node *ast.CodeBlock) {
	var code strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		code.Write(segment.Value(w.source))
	}

	faint := w.newStyle().Foreground(w.theme.Faint)
	w.ensureBlankLine()
	for _, line := range strings.Split(strings.TrimRight(code.String(), "\n"), "\n") {
		w.writeOutput(w.consumeLinePrefix() + faint.Render(line))
		w.ensureNewline()
	}
	w.ensureBlankLine()
}

func (w *walker) enterList(list *ast.List) {
	startNumber := 0
	if list.IsOrdered() {
		startNumber = list.Start
	}
	w.listStack = append(w.listStack, listState{
		ordered: list.IsOrdered(),
		counter: startNumber,
		tight:   list.IsTight,
	})
}

func (w *walker) leaveList() {
	if len(w.listStack) > 0 {
		w.listStack = w.listStack[:len(w.listStack)-1]
	}
	if !w.inTightList() {
		w.ensureBlankLine()
	}
}

func (w *walker) enterListItem() {
	if len(w.listStack) == 0 {
		return
	}
	top := &w.listStack[len(w.listStack)-1]

	var bullet string
	if top.ordered {
		bullet = fmt.Sprintf("%d. ", top.counter)
		top.counter++
	} else {
		bullet = "- "
	}

	bulletWidth := len(bullet) // ASCII-only, so byte length == visual width.
	continuation := strings.Repeat(" ", bulletWidth)

	// The pending bullet includes the current linePrefix so it
	// replaces the entire prefix for the first line of this item.
	w.pendingBullet = w.linePrefix + bullet
	w.pushPrefix(continuation, bulletWidth)
}

func (w *walker) leaveListItem() {
	w.popPrefix()
	if !w.inTightList() {
		w.ensureBlankLine()
	} else {
		w.ensureNewline()
	}
}

func (w *walker) renderThematicBreak() {
	rule := strings.Repeat("─", w.currentWidth())
	ruleStyle := w.newStyle().Foreground(w.theme.Border)
	w.ensureBlankLine()
	w.writeOutput(w.applyPrefixes(ruleStyle.Render(rule)))
	w.ensureNewline()
	w.ensureBlankLine()
}

func (w *walker) renderHTMLBlock(node *ast.HTMLBlock) {
	var html strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		html.Write(segment.Value(w.source))
	}
	stripped := strings.TrimSpace(stripHTMLTags(html.String()))
	if stripped != "" {
		faint := w.newStyle().Foreground(w.theme.Faint)
		w.writeOutput(w.applyPrefixes(faint.Render(stripped)))
		w.ensureNewline()
		w.ensureBlankLine()
	}
}

// --- Inline handlers ---

func (w *walker) handleText(node *ast.Text) {
	value := string(node.Segment.Value(w.source))
	w.inline.WriteString(w.styledText(value))

	if node.SoftLineBreak() {
		// Soft line breaks become spaces so hard-wrapped source text
		// reflows at any terminal width.
		w.inline.WriteString(" ")
	}
	if node.HardLineBreak() {
		w.inline.WriteString("\n")
	}
}

func (w *walker) handleEmphasis(node *ast.Emphasis, entering bool) {
	if node.Level >= 2 {
		if entering {
			w.boldCount++
		} else {
			w.boldCount--
		}
	} else {
		if entering {
			w.italicCount++
		} else {
			w.italicCount--
		}
	}
}

func (w *walker) renderCodeSpan(node ast.Node) {
	var code strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch typed := child.(type) {
		case *ast.Text:
			code.Write(typed.Segment.Value(w.source))
		case *ast.String:
			code.Write(typed.Value)
		}
	}
	codeStyle := w.newStyle().Foreground(w.theme.Faint)
	w.inline.WriteString(codeStyle.Render(code.String()))
}

func (w *walker) renderLink(node *ast.Link) {
	// renderInlineContent already applies inline styling to the link
	// text, so it is written directly without double-styling.
	displayText := w.renderInlineContent(node)
	url := string(node.Destination)

	w.inline.WriteString(displayText)
	if url != "" {
		urlStyle := w.newStyle().Foreground(w.theme.Faint)
		w.inline.WriteString(" " + urlStyle.Render("("+url+")"))
	}
}

func (w *walker) renderImage(node *ast.Image) {
	altText := w.renderInlineContent(node)
	url := string(node.Destination)
	faint := w.newStyle().Foreground(w.theme.Faint)
	w.inline.WriteString(faint.Render("[" + altText + "]"))
	if url != "" {
		w.inline.WriteString(" " + faint.Render("("+url+")"))
	}
}

func (w *walker) renderRawHTML(node *ast.RawHTML) {
	var html strings.Builder
	for index := 0; index < node.Segments.Len(); index++ {
		segment := node.Segments.At(index)
		html.Write(segment.Value(w.source))
	}
	stripped := stripHTMLTags(html.String())
	if stripped != "" {
		faint := w.newStyle().Foreground(w.theme.Faint)
		w.inline.WriteString(faint.Render(stripped))
	}
}

// --- Table rendering ---

func (w *walker) renderTable(node ast.Node) {
	table := node.(*extast.Table)
	alignments := table.Alignments

	var headerCells []string
	var bodyRows [][]string
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case extast.KindTableHeader:
			headerCells = w.collectTableRow(child)
		case extast.KindTableRow:
			bodyRows = append(bodyRows, w.collectTableRow(child))
		}
	}

	columnCount := len(headerCells)
	if columnCount == 0 && len(bodyRows) > 0 {
		columnCount = len(bodyRows[0])
	}
	if columnCount == 0 {
		return
	}

	// Column widths from visible content width.
	columnWidths := make([]int, columnCount)
	measure := func(row []string) {
		for index, cell := range row {
			if index < columnCount {
				if width := lipgloss.Width(cell); width > columnWidths[index] {
					columnWidths[index] = width
				}
			}
		}
	}
	measure(headerCells)
	for _, row := range bodyRows {
		measure(row)
	}

	// Cap total width to available space: shrink columns
	// proportionally, minimum 3 chars per column.
	separator := "  "
	totalWidth := len(separator) * (columnCount - 1)
	for _, width := range columnWidths {
		totalWidth += width
	}
	available := w.currentWidth()
	if totalWidth > available {
		usable := available - len(separator)*(columnCount-1)
		if usable < columnCount*3 {
			usable = columnCount * 3
		}
		for index := range columnWidths {
			columnWidths[index] = (columnWidths[index] * usable) / totalWidth
			if columnWidths[index] < 3 {
				columnWidths[index] = 3
			}
		}
	}

	w.ensureBlankLine()

	if len(headerCells) > 0 {
		bold := w.newStyle().Bold(true).Foreground(w.theme.Normal)
		w.writeOutput(w.consumeLinePrefix() +
			w.formatTableRow(headerCells, columnWidths, alignments, bold))
		w.ensureNewline()

		var separatorParts []string
		for _, width := range columnWidths {
			separatorParts = append(separatorParts, strings.Repeat("─", width))
		}
		borderStyle := w.newStyle().Foreground(w.theme.Border)
		w.writeOutput(w.linePrefix +
			borderStyle.Render(strings.Join(separatorParts, separator)))
		w.ensureNewline()
	}

	for _, row := range bodyRows {
		w.writeOutput(w.linePrefix +
			w.formatTableRow(row, columnWidths, alignments, w.newStyle()))
		w.ensureNewline()
	}

	w.ensureBlankLine()
}

func (w *walker) collectTableRow(row ast.Node) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if cell.Kind() == extast.KindTableCell {
			cells = append(cells, w.renderInlineContent(cell))
		}
	}
	return cells
}

func (w *walker) formatTableRow(
	cells []string,
	columnWidths []int,
	alignments []extast.Alignment,
	baseStyle lipgloss.Style,
) string {
	separator := "  "
	var parts []string
	for index, width := range columnWidths {
		var cell string
		if index < len(cells) {
			cell = cells[index]
		}

		visibleWidth := lipgloss.Width(cell)
		if visibleWidth > width {
			cell = ansi.Truncate(cell, width, "…")
			visibleWidth = lipgloss.Width(cell)
		}

		padding := width - visibleWidth
		if padding < 0 {
			padding = 0
		}

		var alignment extast.Alignment
		if index < len(alignments) {
			alignment = alignments[index]
		}
		switch alignment {
		case extast.AlignRight:
			cell = strings.Repeat(" ", padding) + cell
		case extast.AlignCenter:
			leftPad := padding / 2
			cell = strings.Repeat(" ", leftPad) + cell + strings.Repeat(" ", padding-leftPad)
		default: // Left or unset.
			cell = cell + strings.Repeat(" ", padding)
		}
		parts = append(parts, cell)
	}
	return baseStyle.Render(strings.Join(parts, separator))
}

// stripHTMLTags removes HTML tags from a string, returning only the
// text content.
func stripHTMLTags(html string) string {
	var result strings.Builder
	inTag := false
	for _, character := range html {
		switch {
		case character == '<':
			inTag = true
		case character == '>':
			inTag = false
		case !inTag:
			result.WriteRune(character)
		}
	}
	return result.String()
}
