package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crawlforge/deepcrawl/internal/crawler"
)

func writeTestArtifact(t *testing.T, results crawler.ResultMap) string {
	t.Helper()
	w := NewArtifactWriter(t.TempDir(), nil)
	path, err := w.Write(results)
	require.NoError(t, err)
	return path
}

// TestImporterImportsNewPages verifies pages absent from the store are
// inserted.
func TestImporterImportsNewPages(t *testing.T) {
	t.Parallel()

	path := writeTestArtifact(t, crawler.ResultMap{
		"https://example.com/a": {URL: "https://example.com/a", Title: "A"},
		"https://example.com/b": {URL: "https://example.com/b", Title: "B"},
	})

	store := newFakeStore()
	imp := NewImporter(ImporterConfig{}, store, nil)

	stats, err := imp.ImportFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Imported)
	require.Zero(t, stats.Skipped)
	require.Zero(t, stats.Failed)
	require.Len(t, store.docs, 2)
}

// TestImporterSkipsExistingPages verifies duplicate URLs are left alone so
// re-imports are idempotent.
func TestImporterSkipsExistingPages(t *testing.T) {
	t.Parallel()

	path := writeTestArtifact(t, crawler.ResultMap{
		"https://example.com/old": {URL: "https://example.com/old"},
		"https://example.com/new": {URL: "https://example.com/new"},
	})

	store := newFakeStore()
	store.docs = append(store.docs, Document{URL: "https://example.com/old"})
	imp := NewImporter(ImporterConfig{}, store, nil)

	stats, err := imp.ImportFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Imported)
	require.Equal(t, 1, stats.Skipped)
	require.Len(t, store.docs, 2)
}

// TestImporterRetriesExistenceCheck verifies transient existence-probe
// failures are retried before the page is imported anyway.
func TestImporterRetriesExistenceCheck(t *testing.T) {
	t.Parallel()

	path := writeTestArtifact(t, crawler.ResultMap{
		"https://example.com/a": {URL: "https://example.com/a"},
	})

	store := &flakyExistsStore{fakeStore: newFakeStore(), failures: 2}
	imp := NewImporter(ImporterConfig{MaxRetries: 3, RetryDelay: time.Millisecond}, store, nil)

	stats, err := imp.ImportFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Imported)
	require.Equal(t, 3, store.checks(), "two failures plus one success")
}

// TestImporterRetriesFailedInserts verifies a transiently failing insert is
// reattempted instead of being counted failed on the first try.
func TestImporterRetriesFailedInserts(t *testing.T) {
	t.Parallel()

	path := writeTestArtifact(t, crawler.ResultMap{
		"https://example.com/a": {URL: "https://example.com/a", Title: "A"},
	})

	store := &flakyInsertStore{fakeStore: newFakeStore(), failures: 2}
	imp := NewImporter(ImporterConfig{MaxRetries: 3, RetryDelay: time.Millisecond}, store, nil)

	stats, err := imp.ImportFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Imported)
	require.Zero(t, stats.Failed)
	require.Equal(t, 3, store.attempts(), "two failures plus one success")
	require.Len(t, store.docs, 1)
}

// TestImporterGivesUpAfterMaxInsertRetries verifies a persistently failing
// insert is counted failed once the retry budget is spent.
func TestImporterGivesUpAfterMaxInsertRetries(t *testing.T) {
	t.Parallel()

	path := writeTestArtifact(t, crawler.ResultMap{
		"https://example.com/a": {URL: "https://example.com/a"},
	})

	store := &flakyInsertStore{fakeStore: newFakeStore(), failures: 10}
	imp := NewImporter(ImporterConfig{MaxRetries: 2, RetryDelay: time.Millisecond}, store, nil)

	stats, err := imp.ImportFile(context.Background(), path)
	require.NoError(t, err)
	require.Zero(t, stats.Imported)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 2, store.attempts())
}

// TestImporterMissingFile verifies a bad path errors before touching the
// store.
func TestImporterMissingFile(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	imp := NewImporter(ImporterConfig{}, store, nil)

	_, err := imp.ImportFile(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	require.Empty(t, store.docs)
}

// flakyExistsStore fails the first N existence checks.
type flakyExistsStore struct {
	*fakeStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyExistsStore) PageExists(ctx context.Context, url string) (bool, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return false, errors.New("transient store error")
	}
	return f.fakeStore.PageExists(ctx, url)
}

func (f *flakyExistsStore) checks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// flakyInsertStore fails the first N document inserts.
type flakyInsertStore struct {
	*fakeStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyInsertStore) InsertDocument(ctx context.Context, doc Document) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("transient insert error")
	}
	return f.fakeStore.InsertDocument(ctx, doc)
}

func (f *flakyInsertStore) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
