// Package crawler implements the crawl orchestration engine: recursive
// link-following with domain and visited-set control, concurrent multi-seed
// crawling behind a bounded work queue, markdown chunking, and sitemap
// discovery. Page fetching, summarization, and embedding are collaborators
// injected through the interfaces in interfaces.go.
package crawler
