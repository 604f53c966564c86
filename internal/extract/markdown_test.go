package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHTMLToMarkdownRendersStructure verifies headings, paragraphs, lists,
// code, and quotes come out in document order.
func TestHTMLToMarkdownRendersStructure(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<h1>Main Title</h1>
<p>Intro paragraph.</p>
<h2>Details</h2>
<ul><li>first item</li><li>second item</li></ul>
<pre>code sample</pre>
<blockquote>a wise quote</blockquote>
</body></html>`

	md := HTMLToMarkdown(html)

	require.Contains(t, md, "# Main Title")
	require.Contains(t, md, "Intro paragraph.")
	require.Contains(t, md, "## Details")
	require.Contains(t, md, "* first item")
	require.Contains(t, md, "* second item")
	require.Contains(t, md, "```\ncode sample\n```")
	require.Contains(t, md, "> a wise quote")

	require.Less(t, strings.Index(md, "# Main Title"), strings.Index(md, "Intro paragraph."))
	require.Less(t, strings.Index(md, "## Details"), strings.Index(md, "* first item"))
}

// TestHTMLToMarkdownDropsChrome verifies navigation, scripts, and styles are
// removed.
func TestHTMLToMarkdownDropsChrome(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<nav><a href="/">home</a><p>nav text</p></nav>
<script>var x = 1;</script>
<style>body { color: red; }</style>
<p>real content</p>
<footer><p>footer text</p></footer>
</body></html>`

	md := HTMLToMarkdown(html)

	require.Equal(t, "real content", md)
}

// TestHTMLToMarkdownCollapsesBlankRuns verifies output never contains more
// than one blank line in a row.
func TestHTMLToMarkdownCollapsesBlankRuns(t *testing.T) {
	t.Parallel()

	html := `<p>one</p><p></p><p>  </p><p>two</p>`
	md := HTMLToMarkdown(html)

	require.NotContains(t, md, "\n\n\n")
	require.Contains(t, md, "one")
	require.Contains(t, md, "two")
}

// TestHTMLToMarkdownEmptyInput verifies degenerate input yields an empty
// string.
func TestHTMLToMarkdownEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, HTMLToMarkdown(""))
	require.Empty(t, HTMLToMarkdown("<html><body></body></html>"))
}
