package job

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/crawlforge/deepcrawl/internal/extract"
	"github.com/crawlforge/deepcrawl/internal/llm"
	"github.com/crawlforge/deepcrawl/internal/storage"
)

// newSiteServer serves a two-page site where the index links to a child page.
func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><head><title>Index</title></head><body>
<h1>Index</h1><p>Welcome to the index page with enough words to extract.</p>
<a href="/child">child page</a></body></html>`))
	})
	mux.HandleFunc("/child", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Child</title></head><body>
<h1>Child</h1><p>The child page also has some meaningful body content.</p>
</body></html>`))
	})
	return srv
}

// newLLMServer fakes the Ollama generate and embeddings endpoints.
func newLLMServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":"a test summary"}`))
	})
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.25]}`))
	})
	return srv
}

func newTestRunner(t *testing.T, llmURL, artifactDir string, store storage.Store) *Runner {
	t.Helper()
	return NewRunner(RunnerConfig{
		Extract: extract.Config{
			Timeout:    5 * time.Second,
			MaxRetries: 1,
			RetryDelay: 10 * time.Millisecond,
		},
		LLM: llm.Config{
			BaseURL:        llmURL,
			Model:          "test-model",
			EmbeddingModel: "test-embed",
			TargetDim:      4,
			Timeout:        5 * time.Second,
		},
		MaxRequestsPerSecond: 0,
		MinRequestInterval:   0,
		ArtifactDir:          artifactDir,
		Store:                store,
	})
}

// TestRunnerRunCompletesSingleSeed drives a full crawl against a local site
// and checks the terminal state, results, and artifact.
func TestRunnerRunCompletesSingleSeed(t *testing.T) {
	t.Parallel()

	site := newSiteServer(t)
	llmSrv := newLLMServer(t)
	dir := t.TempDir()
	store := &memoryStore{}

	runner := newTestRunner(t, llmSrv.URL, dir, store)
	tr := NewTracker(uuid.New(), 10, nil, nil)

	runner.Run(context.Background(), tr, Request{
		URL:      site.URL + "/",
		MaxDepth: 1,
		MaxPages: 10,
	})

	snap := tr.Snapshot()
	require.Equal(t, StatusCompleted, snap.Status)
	require.Equal(t, 1.0, snap.Progress)
	require.Len(t, snap.Result, 2, "index and child page")

	index, ok := snap.Result[site.URL+"/"]
	require.True(t, ok)
	require.Equal(t, "Index", index.Title)
	require.Equal(t, "a test summary", index.Summary)
	require.Len(t, index.Embedding, 4, "embedding padded to target dim")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasPrefix(entries[0].Name(), "crawl_results_"))
	require.Equal(t, ".json", filepath.Ext(entries[0].Name()))

	require.Equal(t, 2, store.documents(), "both pages stored")
}

// TestRunnerRunTruncatesToMaxPages verifies the page cap applies to the
// final result.
func TestRunnerRunTruncatesToMaxPages(t *testing.T) {
	t.Parallel()

	site := newSiteServer(t)
	llmSrv := newLLMServer(t)

	runner := newTestRunner(t, llmSrv.URL, t.TempDir(), nil)
	tr := NewTracker(uuid.New(), 1, nil, nil)

	runner.Run(context.Background(), tr, Request{
		URL:      site.URL + "/",
		MaxDepth: 1,
		MaxPages: 1,
	})

	snap := tr.Snapshot()
	require.Equal(t, StatusCompleted, snap.Status)
	require.Len(t, snap.Result, 1)
}

// TestRunnerRunSitemapModeFailsOnEmptySitemap verifies an unusable sitemap
// ends the job in the error state.
func TestRunnerRunSitemapModeFailsOnEmptySitemap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	runner := newTestRunner(t, srv.URL, t.TempDir(), nil)
	tr := NewTracker(uuid.New(), 10, nil, nil)

	runner.Run(context.Background(), tr, Request{
		URL:      srv.URL + "/sitemap.xml",
		Sitemap:  true,
		MaxDepth: 0,
		MaxPages: 10,
	})

	snap := tr.Snapshot()
	require.Equal(t, StatusError, snap.Status)
	require.Contains(t, snap.Error, "no URLs")
	require.NotNil(t, snap.CompletedAt)
}

// TestRunnerRecoversFromPanic verifies a panic during the run is contained:
// the goroutine survives and the job lands in the failed state with the
// panic message captured.
func TestRunnerRecoversFromPanic(t *testing.T) {
	t.Parallel()

	site := newSiteServer(t)
	llmSrv := newLLMServer(t)

	runner := newTestRunner(t, llmSrv.URL, t.TempDir(), panicStore{})
	tr := NewTracker(uuid.New(), 10, nil, nil)

	require.NotPanics(t, func() {
		runner.Run(context.Background(), tr, Request{
			URL:      site.URL + "/",
			MaxDepth: 0,
			MaxPages: 10,
		})
	})

	snap := tr.Snapshot()
	require.Equal(t, StatusFailed, snap.Status)
	require.Contains(t, snap.Error, "panic")
	require.NotNil(t, snap.CompletedAt)
}

// TestRunnerStorageFailureDoesNotFailJob verifies a broken store leaves the
// job completed; the artifact already holds the crawl output.
func TestRunnerStorageFailureDoesNotFailJob(t *testing.T) {
	t.Parallel()

	site := newSiteServer(t)
	llmSrv := newLLMServer(t)
	store := &memoryStore{failInserts: true}

	runner := newTestRunner(t, llmSrv.URL, t.TempDir(), store)
	tr := NewTracker(uuid.New(), 10, nil, nil)

	runner.Run(context.Background(), tr, Request{
		URL:      site.URL + "/",
		MaxDepth: 0,
		MaxPages: 10,
	})

	require.Equal(t, StatusCompleted, tr.Snapshot().Status)
}

// memoryStore is an in-memory storage.Store for runner tests.
type memoryStore struct {
	mu          sync.Mutex
	docs        []storage.Document
	pages       []storage.SitePage
	failInserts bool
}

func (m *memoryStore) InsertSitePage(_ context.Context, page storage.SitePage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInserts {
		return errStoreDown
	}
	m.pages = append(m.pages, page)
	return nil
}

func (m *memoryStore) InsertDocument(_ context.Context, doc storage.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInserts {
		return errStoreDown
	}
	m.docs = append(m.docs, doc)
	return nil
}

func (m *memoryStore) PageExists(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.URL == url {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) Close() {}

func (m *memoryStore) documents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// panicStore blows up on any insert.
type panicStore struct{}

func (panicStore) InsertSitePage(context.Context, storage.SitePage) error {
	panic("store corrupted")
}

func (panicStore) InsertDocument(context.Context, storage.Document) error {
	panic("store corrupted")
}

func (panicStore) PageExists(context.Context, string) (bool, error) { return false, nil }

func (panicStore) Close() {}

type storeErr string

func (e storeErr) Error() string { return string(e) }

var errStoreDown = storeErr("store down")
