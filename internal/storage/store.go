// Package storage persists crawl results: structured rows in Postgres and a
// JSON artifact on local disk.
package storage

import (
	"context"
	"time"
)

// SitePage is one chunk of a crawled page as stored remotely. URL plus
// ChunkNumber identify the row.
type SitePage struct {
	URL         string
	ChunkNumber int
	Title       string
	Summary     string
	Content     string
	Metadata    map[string]any
	Embedding   []float32
}

// Document is the whole-page record kept alongside the chunk rows.
type Document struct {
	URL       string
	Title     string
	Content   string
	Summary   string
	Metadata  map[string]any
	CrawledAt time.Time
}

// Store is the remote persistence surface.
type Store interface {
	// InsertSitePage stores one chunk row.
	InsertSitePage(ctx context.Context, page SitePage) error
	// InsertDocument stores the whole-page record.
	InsertDocument(ctx context.Context, doc Document) error
	// PageExists reports whether any row for the URL is already stored.
	PageExists(ctx context.Context, url string) (bool, error)
	// Close releases the underlying pool.
	Close()
}
