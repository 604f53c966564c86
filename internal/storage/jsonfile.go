package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/crawler"
)

// ArtifactWriter drops each crawl's full result map as a timestamped JSON
// file, the local backup that the importer can replay into the store later.
type ArtifactWriter struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewArtifactWriter builds a writer rooted at dir.
func NewArtifactWriter(dir string, logger *zap.Logger) *ArtifactWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactWriter{dir: dir, logger: logger, now: time.Now}
}

// Write serializes results to crawl_results_<timestamp>.json and returns the
// file path.
func (w *ArtifactWriter) Write(results crawler.ResultMap) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	name := fmt.Sprintf("crawl_results_%s.json", w.now().UTC().Format("20060102_150405"))
	path := filepath.Join(w.dir, name)

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	w.logger.Info("wrote crawl artifact", zap.String("path", path), zap.Int("pages", len(results)))
	return path, nil
}

// ReadArtifact loads a result map previously written by Write.
func ReadArtifact(path string) (crawler.ResultMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var results crawler.ResultMap
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	return results, nil
}
