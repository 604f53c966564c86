package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/crawler"
	"github.com/crawlforge/deepcrawl/internal/metrics"
)

// Writer walks a crawl result map and persists it through a Store. Failures
// are counted and logged per row; one bad row never blocks the rest.
type Writer struct {
	store  Store
	logger *zap.Logger
}

// NewWriter builds a Writer.
func NewWriter(store Store, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, logger: logger}
}

// WriteResults inserts one document per page and one site_pages row per
// chunk. It returns how many pages stored cleanly and how many had at least
// one failed insert.
func (w *Writer) WriteResults(ctx context.Context, results crawler.ResultMap) (stored, failed int) {
	for url, rec := range results {
		if err := ctx.Err(); err != nil {
			w.logger.Warn("result storage interrupted", zap.Error(err))
			return stored, failed
		}
		if w.writePage(ctx, url, rec) {
			stored++
		} else {
			failed++
		}
	}
	w.logger.Info("stored crawl results",
		zap.Int("stored", stored), zap.Int("failed", failed))
	return stored, failed
}

func (w *Writer) writePage(ctx context.Context, url string, rec *crawler.PageRecord) bool {
	ok := true

	doc := Document{
		URL:     url,
		Title:   rec.Title,
		Content: rec.Markdown,
		Summary: rec.Summary,
		Metadata: map[string]any{
			"status":      string(rec.Status),
			"word_count":  rec.Stats.WordCount,
			"chunk_count": rec.Stats.ChunkCount,
			"link_count":  len(rec.Links),
		},
		CrawledAt: rec.CrawledAt,
	}
	if err := w.store.InsertDocument(ctx, doc); err != nil {
		metrics.ObserveStoreInsert("document", "error")
		w.logger.Warn("document insert failed", zap.String("url", url), zap.Error(err))
		ok = false
	} else {
		metrics.ObserveStoreInsert("document", "ok")
	}

	for _, chunk := range rec.Chunks {
		page := SitePage{
			URL:         url,
			ChunkNumber: chunk.ID,
			Title:       rec.Title,
			Summary:     rec.Summary,
			Content:     chunk.Content,
			Metadata: map[string]any{
				"word_count": chunk.WordCount,
			},
		}
		// The page-level embedding rides on the first chunk only.
		if chunk.ID == 0 {
			page.Embedding = rec.Embedding
		}
		if err := w.store.InsertSitePage(ctx, page); err != nil {
			metrics.ObserveStoreInsert("site_page", "error")
			w.logger.Warn("chunk insert failed",
				zap.String("url", url), zap.Int("chunk", chunk.ID), zap.Error(err))
			ok = false
			continue
		}
		metrics.ObserveStoreInsert("site_page", "ok")
	}
	return ok
}
