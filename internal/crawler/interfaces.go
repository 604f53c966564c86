package crawler

import "context"

// Extractor fetches a URL and converts it to structured content. An
// implementation must retry transient fetch errors before failing.
type Extractor interface {
	Extract(ctx context.Context, url string) (Content, error)
}

// Summarizer produces a short text summary for a page. Failures are
// non-fatal; callers treat an error as "no summary".
type Summarizer interface {
	Summarize(ctx context.Context, title string, chunks []Chunk) (string, error)
}

// Embedder produces a fixed-dimension vector for a text. Failures are
// non-fatal; the page is kept without an embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PageProcessor turns one URL into a PageRecord, or nil when the URL is
// rejected (wrong domain, no content) or processing failed.
type PageProcessor interface {
	Process(ctx context.Context, url string) (*PageRecord, error)
}
