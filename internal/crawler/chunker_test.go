package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestChunkMarkdownEmptyInput verifies empty markdown yields no chunks.
func TestChunkMarkdownEmptyInput(t *testing.T) {
	t.Parallel()

	require.Nil(t, ChunkMarkdown("", 100))
}

// TestChunkMarkdownSingleSmallDocument verifies a document under the limit
// stays one chunk.
func TestChunkMarkdownSingleSmallDocument(t *testing.T) {
	t.Parallel()

	chunks := ChunkMarkdown("hello world", 100)
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].ID)
	require.Equal(t, "hello world", chunks[0].Content)
	require.Equal(t, 2, chunks[0].WordCount)
}

// TestChunkMarkdownSplitsOnParagraphs verifies chunk boundaries land on
// paragraph breaks once the size limit is hit.
func TestChunkMarkdownSplitsOnParagraphs(t *testing.T) {
	t.Parallel()

	para := strings.Repeat("word ", 20) // ~100 bytes
	markdown := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	chunks := ChunkMarkdown(markdown, 120)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		require.Equal(t, i, c.ID)
		require.NotEmpty(t, c.Content)
		require.NotEmpty(t, strings.TrimSpace(c.Content))
	}
}

// TestChunkMarkdownHeadingStartsNewContent verifies a heading marker stays
// attached to the content that follows it.
func TestChunkMarkdownHeadingStartsNewContent(t *testing.T) {
	t.Parallel()

	markdown := strings.Repeat("a", 90) + "\n## Section Two\nbody text"
	chunks := ChunkMarkdown(markdown, 100)

	require.Len(t, chunks, 2)
	require.True(t, strings.HasPrefix(chunks[1].Content, "## Section Two"))
	require.Contains(t, chunks[1].Content, "body text")
}

// TestChunkMarkdownOversizedAtomicPart verifies a single part larger than the
// limit passes through whole rather than being split mid-unit.
func TestChunkMarkdownOversizedAtomicPart(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("x", 500)
	chunks := ChunkMarkdown(big, 100)

	require.Len(t, chunks, 1)
	require.Equal(t, big, chunks[0].Content)
}

// TestChunkMarkdownPreservesContentOrder verifies all non-whitespace content
// survives chunking in document order.
func TestChunkMarkdownPreservesContentOrder(t *testing.T) {
	t.Parallel()

	markdown := "alpha\n\nbravo\n\ncharlie\n\ndelta"
	chunks := ChunkMarkdown(markdown, 12)

	var joined []string
	for _, c := range chunks {
		joined = append(joined, c.Content)
	}
	all := strings.Join(joined, " ")
	for _, word := range []string{"alpha", "bravo", "charlie", "delta"} {
		require.Contains(t, all, word)
	}
	require.Less(t, strings.Index(all, "alpha"), strings.Index(all, "bravo"))
	require.Less(t, strings.Index(all, "bravo"), strings.Index(all, "charlie"))
	require.Less(t, strings.Index(all, "charlie"), strings.Index(all, "delta"))
}

// TestChunkMarkdownDeterministic verifies repeated runs produce identical
// output.
func TestChunkMarkdownDeterministic(t *testing.T) {
	t.Parallel()

	markdown := "# Title\n\nfirst paragraph\n\n## Sub\n\nsecond paragraph here"
	first := ChunkMarkdown(markdown, 30)
	second := ChunkMarkdown(markdown, 30)
	require.Equal(t, first, second)
}
