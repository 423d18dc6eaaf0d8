// ABOUTME: Renders article markdown to HTML for skill replies.
// ABOUTME: Thin wrapper over goldmark with GitHub-flavored table/strikethrough support.

package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var renderer = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
)

// Render converts article markdown to HTML.
func Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// Summarize returns the first non-heading paragraph of the markdown, trimmed
// to at most maxLen runes. Used for compact article listings.
func Summarize(source string, maxLen int) string {
	for _, block := range strings.Split(source, "\n\n") {
		line := strings.TrimSpace(block)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.Join(strings.Fields(line), " ")
		runes := []rune(line)
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "…"
		}
		return line
	}
	return ""
}
