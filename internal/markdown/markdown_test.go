// ABOUTME: Tests for markdown rendering and summarization.

package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	html, err := Render("# Title\n\nSome **bold** text.")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Title</h1>")
	assert.Contains(t, html, "<strong>bold</strong>")
}

func TestRenderTables(t *testing.T) {
	html, err := Render("| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)
	assert.Contains(t, html, "<table>")
}

func TestSummarize(t *testing.T) {
	src := "# Heading\n\nThis is the   first paragraph\nwith a wrapped line.\n\nSecond paragraph."
	assert.Equal(t, "This is the first paragraph with a wrapped line.", Summarize(src, 100))
}

func TestSummarizeTruncates(t *testing.T) {
	got := Summarize("abcdefghij", 5)
	assert.Equal(t, "abcde…", got)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, "", Summarize("# Only a heading\n", 50))
}
