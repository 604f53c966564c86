package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/metrics"
)

// assetExtensions are binary targets never worth following.
var assetExtensions = []string{".pdf", ".zip", ".jpg", ".png", ".gif"}

// summaryChunkCount caps how many leading chunks feed the summarizer.
const summaryChunkCount = 3

// fallbackTitle stands in when a page exposes no usable title at all.
const fallbackTitle = "No title"

// ProcessorConfig controls chunking and collaborator wiring.
type ProcessorConfig struct {
	// AllowedDomains scopes the crawl. When empty the set is seeded from
	// the first URL processed.
	AllowedDomains []string
	// MaxChunkSize bounds chunk length (DefaultMaxChunkSize when zero).
	MaxChunkSize int
	Extractor    Extractor
	Summarizer   Summarizer
	Embedder     Embedder
	Reporter     ProgressReporter
	Logger       *zap.Logger
}

// Processor turns one URL into a PageRecord: domain filtering, content
// extraction, link discovery, chunking, summarization, and embedding. Any
// failure is isolated to the URL being processed.
type Processor struct {
	mu      sync.Mutex
	domains *DomainSet

	maxChunkSize int
	extractor    Extractor
	summarizer   Summarizer
	embedder     Embedder
	reporter     ProgressReporter
	logger       *zap.Logger
	now          func() time.Time
}

// NewProcessor builds a Processor. Extractor is required; nil summarizer or
// embedder simply skips that enrichment.
func NewProcessor(cfg ProcessorConfig) *Processor {
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxChunk := cfg.MaxChunkSize
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunkSize
	}
	return &Processor{
		domains:      NewDomainSet(cfg.AllowedDomains),
		maxChunkSize: maxChunk,
		extractor:    cfg.Extractor,
		summarizer:   cfg.Summarizer,
		embedder:     cfg.Embedder,
		reporter:     reporter,
		logger:       logger,
		now:          time.Now,
	}
}

// Process implements PageProcessor. It returns (nil, nil) for URLs rejected
// by the domain filter or lacking content, and (nil, err) when a processing
// step failed; either way the failure touches only this URL.
func (p *Processor) Process(ctx context.Context, pageURL string) (*PageRecord, error) {
	if !p.domainAllowed(pageURL) {
		p.reporter.Log("skipping URL not in allowed domains: " + pageURL)
		metrics.ObservePageProcessed("rejected")
		return nil, nil
	}

	p.reporter.Log("extracting content from: " + pageURL)
	content, err := p.extractor.Extract(ctx, pageURL)
	if err != nil {
		metrics.ObservePageProcessed("error")
		return nil, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	if content.Empty() {
		p.reporter.Log("skipping URL with no content: " + pageURL)
		metrics.ObservePageProcessed("rejected")
		return nil, nil
	}

	links, err := p.discoverLinks(pageURL, content.HTML)
	if err != nil {
		metrics.ObservePageProcessed("error")
		return nil, fmt.Errorf("discover links on %s: %w", pageURL, err)
	}

	title := p.resolveTitle(content)

	var chunks []Chunk
	var summary string
	if content.Markdown != "" {
		chunks = ChunkMarkdown(content.Markdown, p.maxChunkSize)
		p.reporter.Log(fmt.Sprintf("content stats for %s: %d words, %d chunks",
			pageURL, len(strings.Fields(content.Markdown)), len(chunks)))
		summary = p.summarize(ctx, pageURL, title, chunks)
	}

	rec := &PageRecord{
		URL:      pageURL,
		Status:   PageStatusAccessible,
		Title:    title,
		Markdown: content.Markdown,
		Summary:  summary,
		Links:    links,
		Chunks:   chunks,
		Stats: ContentStats{
			WordCount:  len(strings.Fields(content.Markdown)),
			ChunkCount: len(chunks),
		},
		CrawledAt: p.now().UTC(),
	}

	if content.Markdown != "" && p.embedder != nil {
		embedding, embedErr := p.embedder.Embed(ctx, title+"\n\n"+content.Markdown)
		if embedErr != nil {
			// The page is kept without an embedding.
			p.logger.Warn("embedding failed", zap.String("url", pageURL), zap.Error(embedErr))
		} else if len(embedding) > 0 {
			rec.Embedding = embedding
			p.reporter.Log("generated embeddings for: " + pageURL)
		}
	}

	metrics.ObservePageProcessed("ok")
	return rec, nil
}

// Domains exposes the current allowed set, mostly for logging.
func (p *Processor) Domains() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.domains.Domains()
}

// domainAllowed checks the URL against the allowed set, seeding the set from
// the first URL seen when it was not configured. Check-and-seed run under
// one lock so concurrent first calls seed exactly once.
func (p *Processor) domainAllowed(pageURL string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.domains.Empty() {
		domain := NormalizeDomain(pageURL)
		if domain == "" {
			return false
		}
		p.domains.Add(domain)
		p.reporter.Log("setting allowed domain to: " + domain)
	}
	return p.domains.Allows(pageURL)
}

// discoverLinks parses anchors out of the page HTML, resolves them against
// the page URL, and keeps only followable in-domain targets.
func (p *Processor) discoverLinks(pageURL, html string) ([]string, error) {
	if html == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	// Snapshot under the lock; a concurrent first call may still be
	// seeding the shared set.
	p.mu.Lock()
	domains := NewDomainSet(p.domains.Domains())
	p.mu.Unlock()

	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		ref, parseErr := url.Parse(href)
		if parseErr != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		absStr := abs.String()
		if _, dup := seen[absStr]; dup {
			return
		}
		if isAssetURL(absStr) || !domains.Allows(absStr) {
			return
		}
		seen[absStr] = struct{}{}
		links = append(links, absStr)
	})
	return links, nil
}

// resolveTitle prefers the extractor's title, then <title>, then the first
// <h1>, and finally the literal fallback so no record ever carries an empty
// title.
func (p *Processor) resolveTitle(content Content) string {
	if content.Title != "" {
		return content.Title
	}
	if content.HTML != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content.HTML))
		if err == nil {
			if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
				return title
			}
			if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
				return h1
			}
		}
	}
	return fallbackTitle
}

func (p *Processor) summarize(ctx context.Context, pageURL, title string, chunks []Chunk) string {
	if p.summarizer == nil || len(chunks) == 0 {
		return ""
	}
	p.reporter.Log("generating summary for: " + pageURL)
	head := chunks
	if len(head) > summaryChunkCount {
		head = head[:summaryChunkCount]
	}
	summary, err := p.summarizer.Summarize(ctx, title, head)
	if err != nil {
		// Non-fatal: the page is kept without a summary.
		p.logger.Warn("summarization failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	return summary
}

func isAssetURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range assetExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
