package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// db is the subset of pgxpool.Pool the store uses; pgxmock satisfies it in
// tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore writes crawl output to the site_pages and documents tables.
type PostgresStore struct {
	pool   db
	logger *zap.Logger
}

// NewPostgresStore connects a pool to dsn.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStoreWithPool(pool, logger), nil
}

// NewPostgresStoreWithPool wraps an existing pool, mainly for tests.
func NewPostgresStoreWithPool(pool db, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

const insertSitePageSQL = `
INSERT INTO site_pages (url, chunk_number, title, summary, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// InsertSitePage implements Store.
func (s *PostgresStore) InsertSitePage(ctx context.Context, page SitePage) error {
	meta, err := json.Marshal(page.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, insertSitePageSQL,
		page.URL, page.ChunkNumber, page.Title, page.Summary, page.Content,
		meta, vectorLiteral(page.Embedding))
	if err != nil {
		return fmt.Errorf("insert site_page %s#%d: %w", page.URL, page.ChunkNumber, err)
	}
	return nil
}

const insertDocumentSQL = `
INSERT INTO documents (url, title, content, summary, metadata, crawled_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// InsertDocument implements Store.
func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, insertDocumentSQL,
		doc.URL, doc.Title, doc.Content, doc.Summary, meta, doc.CrawledAt)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.URL, err)
	}
	return nil
}

const pageExistsSQL = `SELECT EXISTS (SELECT 1 FROM site_pages WHERE url = $1)`

// PageExists implements Store.
func (s *PostgresStore) PageExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, pageExistsSQL, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("check page exists %s: %w", url, err)
	}
	return exists, nil
}

// Close implements Store.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// vectorLiteral renders an embedding as a pgvector text literal. A nil
// embedding stores SQL NULL.
func vectorLiteral(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
