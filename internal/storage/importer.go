package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/crawler"
)

// ImporterConfig controls artifact replay.
type ImporterConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

const (
	defaultImportRetries = 3
	defaultImportDelay   = 2 * time.Second
)

// ImportStats tallies one import run.
type ImportStats struct {
	Imported int
	Skipped  int
	Failed   int
}

// Importer replays a JSON crawl artifact into the store. Pages whose URL is
// already stored are skipped, so re-running an import is safe.
type Importer struct {
	cfg    ImporterConfig
	store  Store
	writer *Writer
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewImporter builds an Importer.
func NewImporter(cfg ImporterConfig, store Store, logger *zap.Logger) *Importer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultImportRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultImportDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		cfg:    cfg,
		store:  store,
		writer: NewWriter(store, logger),
		logger: logger,
		sleep:  sleepCtx,
	}
}

// ImportFile loads the artifact at path and imports every page not already
// present in the store.
func (i *Importer) ImportFile(ctx context.Context, path string) (ImportStats, error) {
	results, err := ReadArtifact(path)
	if err != nil {
		return ImportStats{}, err
	}
	i.logger.Info("importing crawl artifact",
		zap.String("path", path), zap.Int("pages", len(results)))

	var stats ImportStats
	for url, rec := range results {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("import interrupted: %w", err)
		}

		exists, err := i.pageExists(ctx, url)
		if err != nil {
			i.logger.Warn("existence check failed, importing anyway",
				zap.String("url", url), zap.Error(err))
		}
		if exists {
			stats.Skipped++
			continue
		}

		if i.importPage(ctx, url, rec) {
			stats.Imported++
		} else {
			stats.Failed++
		}
	}

	i.logger.Info("import finished",
		zap.Int("imported", stats.Imported),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

// importPage writes one page, retrying transient insert failures the same
// fixed number of times as the existence check.
func (i *Importer) importPage(ctx context.Context, url string, rec *crawler.PageRecord) bool {
	for attempt := 1; attempt <= i.cfg.MaxRetries; attempt++ {
		if i.writer.writePage(ctx, url, rec) {
			return true
		}
		if attempt < i.cfg.MaxRetries {
			i.logger.Warn("page import failed, retrying",
				zap.String("url", url), zap.Int("attempt", attempt))
			if err := i.sleep(ctx, i.cfg.RetryDelay); err != nil {
				return false
			}
		}
	}
	i.logger.Warn("page import failed after retries",
		zap.String("url", url), zap.Int("attempts", i.cfg.MaxRetries))
	return false
}

// pageExists retries transient store errors before giving up.
func (i *Importer) pageExists(ctx context.Context, url string) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= i.cfg.MaxRetries; attempt++ {
		exists, err := i.store.PageExists(ctx, url)
		if err == nil {
			return exists, nil
		}
		lastErr = err
		if attempt < i.cfg.MaxRetries {
			if sleepErr := i.sleep(ctx, i.cfg.RetryDelay); sleepErr != nil {
				return false, sleepErr
			}
		}
	}
	return false, fmt.Errorf("check %s after %d attempts: %w", url, i.cfg.MaxRetries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
