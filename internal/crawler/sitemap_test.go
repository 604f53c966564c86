package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const urlsetXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/a</loc></url>
  <url><loc>https://example.com/b</loc></url>
  <url><loc>https://example.com/c</loc></url>
</urlset>`

const rssXML = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <item><link>https://example.com/post-1</link></item>
    <item><link>https://example.com/post-2</link></item>
  </channel>
</rss>`

const atomXML = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry><link href="https://example.com/entry-1"/></entry>
  <entry><link href="https://example.com/entry-2"/></entry>
</feed>`

// TestSitemapParseUrlset verifies a standard sitemap yields its URLs in
// document order.
func TestSitemapParseUrlset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(xmlHandler(urlsetXML))
	defer srv.Close()

	parser := NewSitemapParser(srv.Client(), nil)
	urls := parser.Parse(context.Background(), srv.URL+"/sitemap.xml")

	require.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}, urls)
}

// TestSitemapParseIndexRecurses verifies sitemap indexes are flattened by
// fetching each child sitemap.
func TestSitemapParseIndexRecurses(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	indexXML := `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>` + srv.URL + `/child.xml</loc></sitemap>
</sitemapindex>`
	mux.Handle("/index.xml", xmlHandler(indexXML))
	mux.Handle("/child.xml", xmlHandler(urlsetXML))

	parser := NewSitemapParser(srv.Client(), nil)
	urls := parser.Parse(context.Background(), srv.URL+"/index.xml")

	require.Len(t, urls, 3)
	require.Equal(t, "https://example.com/a", urls[0])
}

// TestSitemapParseRSS verifies RSS feeds served as sitemaps are handled.
func TestSitemapParseRSS(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(xmlHandler(rssXML))
	defer srv.Close()

	parser := NewSitemapParser(srv.Client(), nil)
	urls := parser.Parse(context.Background(), srv.URL+"/feed.xml")

	require.Equal(t, []string{
		"https://example.com/post-1",
		"https://example.com/post-2",
	}, urls)
}

// TestSitemapParseAtom verifies Atom feeds with href links are handled.
func TestSitemapParseAtom(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(xmlHandler(atomXML))
	defer srv.Close()

	parser := NewSitemapParser(srv.Client(), nil)
	urls := parser.Parse(context.Background(), srv.URL+"/atom.xml")

	require.Equal(t, []string{
		"https://example.com/entry-1",
		"https://example.com/entry-2",
	}, urls)
}

// TestSitemapParseFailuresYieldEmpty verifies malformed documents and HTTP
// errors produce an empty slice, never a panic or an error.
func TestSitemapParseFailuresYieldEmpty(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.Handle("/broken.xml", xmlHandler("<<<not xml>>>"))
	mux.Handle("/unknown.xml", xmlHandler("<somethingelse/>"))
	mux.HandleFunc("/missing.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	parser := NewSitemapParser(srv.Client(), nil)
	for _, path := range []string{"/broken.xml", "/unknown.xml", "/missing.xml"} {
		urls := parser.Parse(context.Background(), srv.URL+path)
		require.Empty(t, urls, "path %s", path)
		require.NotNil(t, urls, "path %s", path)
	}
}

func xmlHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(body))
	})
}
