package crawler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"
)

// SitemapParser fetches and flattens sitemap.xml documents. It understands
// standard urlset sitemaps, sitemap indexes (recursing into each child), and
// RSS/Atom feeds that some sites serve in place of a sitemap.
type SitemapParser struct {
	client *http.Client
	logger *zap.Logger
}

// NewSitemapParser builds a SitemapParser. A nil client gets a 30s-timeout
// default.
func NewSitemapParser(client *http.Client, logger *zap.Logger) *SitemapParser {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SitemapParser{client: client, logger: logger}
}

// Parse returns every page URL the sitemap references, in document order.
// Any fetch or parse failure yields an empty list; errors are logged, never
// returned.
func (p *SitemapParser) Parse(ctx context.Context, sitemapURL string) []string {
	urls, err := p.parse(ctx, sitemapURL)
	if err != nil {
		p.logger.Warn("sitemap parse failed", zap.String("url", sitemapURL), zap.Error(err))
		return []string{}
	}
	p.logger.Info("parsed sitemap", zap.String("url", sitemapURL), zap.Int("urls", len(urls)))
	return urls
}

func (p *SitemapParser) parse(ctx context.Context, sitemapURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sitemap: unexpected status %d", resp.StatusCode)
	}

	doc, err := xmlquery.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	root := firstElement(doc)
	if root == nil {
		return nil, fmt.Errorf("no root element in %s", sitemapURL)
	}

	switch {
	case strings.HasSuffix(root.Data, "urlset"):
		return collectLocs(root, "//url/loc"), nil
	case strings.HasSuffix(root.Data, "sitemapindex"):
		var urls []string
		for _, child := range collectLocs(root, "//sitemap/loc") {
			// Depth is naturally bounded by the index's own structure.
			urls = append(urls, p.Parse(ctx, child)...)
		}
		return urls, nil
	case strings.HasSuffix(root.Data, "rss"), strings.HasSuffix(root.Data, "feed"):
		return collectFeedLinks(root), nil
	default:
		return nil, fmt.Errorf("unrecognized sitemap root element %q", root.Data)
	}
}

func firstElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

func collectLocs(root *xmlquery.Node, expr string) []string {
	var urls []string
	for _, loc := range xmlquery.Find(root, expr) {
		if text := strings.TrimSpace(loc.InnerText()); text != "" {
			urls = append(urls, text)
		}
	}
	return urls
}

// collectFeedLinks handles RSS items and Atom entries: the link may be
// element text (RSS) or an href attribute (Atom).
func collectFeedLinks(root *xmlquery.Node) []string {
	items := xmlquery.Find(root, "//item")
	if len(items) == 0 {
		items = xmlquery.Find(root, "//entry")
	}
	var urls []string
	for _, item := range items {
		link := xmlquery.FindOne(item, "link")
		if link == nil {
			continue
		}
		if text := strings.TrimSpace(link.InnerText()); text != "" {
			urls = append(urls, text)
			continue
		}
		if href := strings.TrimSpace(link.SelectAttr("href")); href != "" {
			urls = append(urls, href)
		}
	}
	return urls
}
