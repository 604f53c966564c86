package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crawlforge/deepcrawl/internal/crawler"
)

func sampleResults() crawler.ResultMap {
	return crawler.ResultMap{
		"https://example.com/a": {
			URL:      "https://example.com/a",
			Status:   crawler.PageStatusAccessible,
			Title:    "Page A",
			Markdown: "# Page A\n\nbody",
			Summary:  "about page a",
			Links:    []string{"https://example.com/b"},
			Chunks: []crawler.Chunk{
				{ID: 0, Content: "# Page A\n\nbody", WordCount: 4},
			},
			Embedding: []float32{0.1, 0.2},
			Stats:     crawler.ContentStats{WordCount: 4, ChunkCount: 1},
			CrawledAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

// TestArtifactWriteAndRead verifies a written artifact round-trips through
// ReadArtifact.
func TestArtifactWriteAndRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewArtifactWriter(dir, nil)

	path, err := w.Write(sampleResults())
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(path))
	require.True(t, strings.HasPrefix(filepath.Base(path), "crawl_results_"))

	got, err := ReadArtifact(path)
	require.NoError(t, err)
	require.Equal(t, sampleResults(), got)
}

// TestArtifactWriteCreatesDirectory verifies a missing artifact directory is
// created on first write.
func TestArtifactWriteCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "results")
	w := NewArtifactWriter(dir, nil)

	path, err := w.Write(sampleResults())
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestReadArtifactErrors covers missing files and invalid JSON.
func TestReadArtifactErrors(t *testing.T) {
	t.Parallel()

	_, err := ReadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = ReadArtifact(bad)
	require.Error(t, err)
}
