package crawler

import (
	"regexp"
	"strings"
)

// DefaultMaxChunkSize bounds chunk length in bytes unless a part is a single
// atomic unit that already exceeds it.
const DefaultMaxChunkSize = 1000

// chunkDelimiter splits on paragraph breaks and markdown heading markers,
// keeping the delimiter attached to the following content.
var chunkDelimiter = regexp.MustCompile(`(\n\n|\n#{1,6} )`)

// ChunkMarkdown splits markdown into ordered chunks of at most maxSize
// characters. Parts are accumulated greedily; a chunk is flushed when adding
// the next part would overflow it, unless the chunk is still empty, which
// lets a single oversized part through rather than splitting it mid-unit.
// The output is deterministic for a given input.
func ChunkMarkdown(markdown string, maxSize int) []Chunk {
	if markdown == "" {
		return nil
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}

	parts := splitKeepingDelimiters(markdown)

	var chunks []Chunk
	var current strings.Builder
	index := 0
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if current.Len()+len(part) > maxSize && current.Len() > 0 {
			chunks = append(chunks, newChunk(index, current.String()))
			current.Reset()
			index++
		}
		current.WriteString(part)
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, newChunk(index, current.String()))
	}
	return chunks
}

func newChunk(id int, content string) Chunk {
	trimmed := strings.TrimSpace(content)
	return Chunk{
		ID:        id,
		Content:   trimmed,
		WordCount: len(strings.Fields(trimmed)),
	}
}

// splitKeepingDelimiters behaves like a regex split that also yields the
// delimiters as standalone parts, in document order.
func splitKeepingDelimiters(text string) []string {
	matches := chunkDelimiter.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	var parts []string
	last := 0
	for _, m := range matches {
		if m[0] > last {
			parts = append(parts, text[last:m[0]])
		}
		parts = append(parts, text[m[0]:m[1]])
		last = m[1]
	}
	if last < len(text) {
		parts = append(parts, text[last:])
	}
	return parts
}
