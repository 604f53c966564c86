package crawler

import "time"

// PageStatus marks the outcome of processing a single URL.
type PageStatus string

// Page statuses recorded on PageRecord.
const (
	PageStatusAccessible PageStatus = "accessible"
)

// Chunk is a bounded-size segment of a page's markdown content. IDs are
// ordinal and monotonic within a page.
type Chunk struct {
	ID        int    `json:"id"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// ContentStats summarizes the extracted content of a page.
type ContentStats struct {
	WordCount  int `json:"word_count"`
	ChunkCount int `json:"chunk_count"`
}

// PageRecord is produced once per URL by the page processor and is immutable
// after creation. Records are keyed by URL in the engine's result map.
type PageRecord struct {
	URL       string       `json:"url"`
	Status    PageStatus   `json:"status"`
	Title     string       `json:"title"`
	Markdown  string       `json:"markdown"`
	Summary   string       `json:"summary,omitempty"`
	Links     []string     `json:"links"`
	Chunks    []Chunk      `json:"chunks"`
	Embedding []float32    `json:"embedding,omitempty"`
	Stats     ContentStats `json:"content_stats"`
	CrawledAt time.Time    `json:"crawl_date"`
}

// ResultMap is the URL-keyed output of a crawl run.
type ResultMap map[string]*PageRecord

// Content is what the extraction collaborator returns for one URL.
type Content struct {
	Title    string
	HTML     string
	Markdown string
}

// Empty reports whether extraction produced nothing usable.
func (c Content) Empty() bool {
	return c.Markdown == "" && c.HTML == ""
}
