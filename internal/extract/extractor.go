// Package extract implements the content-extraction collaborator: fetch a
// page over HTTP, isolate its main content, and convert it to markdown.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/crawler"
)

// Config controls fetch behavior.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	RespectRobots bool
}

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

var errNoContent = errors.New("no content extracted")

// Extractor fetches pages with Colly and converts them to structured
// content. Transient fetch errors are retried a fixed number of times with a
// fixed delay before the page is given up on.
type Extractor struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
	sleep         func(ctx context.Context, d time.Duration) error
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &Extractor{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
		sleep:         sleepCtx,
	}
}

// Extract implements crawler.Extractor.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (crawler.Content, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return crawler.Content{}, fmt.Errorf("extract %s: %w", pageURL, err)
		}

		html, err := e.fetch(pageURL)
		if err == nil {
			content := e.convert(pageURL, html)
			if !content.Empty() {
				return content, nil
			}
			err = errNoContent
		}
		lastErr = err
		e.logger.Debug("content extraction attempt failed",
			zap.String("url", pageURL),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < e.cfg.MaxRetries {
			if sleepErr := e.sleep(ctx, e.cfg.RetryDelay); sleepErr != nil {
				return crawler.Content{}, fmt.Errorf("extract %s: %w", pageURL, sleepErr)
			}
		}
	}
	return crawler.Content{}, fmt.Errorf("extract %s after %d attempts: %w", pageURL, e.cfg.MaxRetries, lastErr)
}

// fetch executes a single GET through a fresh collector clone so per-run
// visit dedup never interferes with retries.
func (e *Extractor) fetch(pageURL string) (string, error) {
	collector := e.baseCollector.Clone()

	var body []byte
	var fetchErr error
	collector.OnResponse(func(resp *colly.Response) {
		body = resp.Body
	})
	collector.OnError(func(resp *colly.Response, err error) {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		fetchErr = fmt.Errorf("fetch failed with status %d: %w", status, err)
	})

	if err := collector.Visit(pageURL); err != nil {
		return "", fmt.Errorf("visit: %w", err)
	}
	if fetchErr != nil {
		return "", fetchErr
	}
	if len(body) == 0 {
		return "", errors.New("empty response body")
	}
	return string(body), nil
}

// convert isolates the main content with readability and renders it to
// markdown. When readability cannot find an article the raw document is
// used.
func (e *Extractor) convert(pageURL, html string) crawler.Content {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return crawler.Content{}
	}

	mainHTML := html
	title := ""
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err == nil {
		title = strings.TrimSpace(article.Title)
		if strings.TrimSpace(article.Content) != "" {
			mainHTML = article.Content
		}
	} else {
		e.logger.Debug("readability fallback to full document",
			zap.String("url", pageURL), zap.Error(err))
	}

	markdown := HTMLToMarkdown(mainHTML)
	return crawler.Content{
		Title:    title,
		HTML:     mainHTML,
		Markdown: markdown,
	}
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
