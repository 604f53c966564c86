package job

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/crawler"
	"github.com/crawlforge/deepcrawl/internal/extract"
	"github.com/crawlforge/deepcrawl/internal/llm"
	"github.com/crawlforge/deepcrawl/internal/ratelimit"
	"github.com/crawlforge/deepcrawl/internal/storage"
)

// Request is everything a single crawl run needs.
type Request struct {
	// URL is the single seed, or the sitemap URL in sitemap mode.
	URL string
	// URLs holds multiple seeds for a multi-seed crawl.
	URLs []string
	// Sitemap routes the run through sitemap expansion before crawling.
	Sitemap bool
	// MaxDepth is how many link hops to follow beneath each seed.
	MaxDepth int
	// MaxPages caps how many pages the final result may contain.
	MaxPages int
	// Concurrency is the multi-seed worker count.
	Concurrency int
	// AllowedDomains scopes the crawl; empty means "seed's domain".
	AllowedDomains []string
	// Model overrides the configured summarization model for this run.
	Model string
	// EmbeddingModel overrides the configured embedding model for this run.
	EmbeddingModel string
	// SystemPrompt overrides the summarization prompt for this run.
	SystemPrompt string
}

// RunnerConfig wires the runner's collaborators. Store may be nil, in which
// case results are only written to the local artifact.
type RunnerConfig struct {
	Extract extract.Config
	LLM     llm.Config
	// MaxRequestsPerSecond bounds the crawl rate across all workers.
	MaxRequestsPerSecond int
	// MinRequestInterval spaces consecutive requests.
	MinRequestInterval time.Duration
	MaxChunkSize       int
	ArtifactDir        string
	Store              storage.Store
	SitemapTimeout     time.Duration
	Logger             *zap.Logger
}

// Runner executes crawl jobs end to end: crawl, artifact, store.
type Runner struct {
	cfg    RunnerConfig
	logger *zap.Logger
}

// NewRunner builds a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SitemapTimeout <= 0 {
		cfg.SitemapTimeout = 30 * time.Second
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run drives one job through its lifecycle on the calling goroutine. Callers
// launch it in a goroutine and use the manager to observe it. The tracker
// always reaches a terminal status: a panic anywhere in the run is contained
// here and recorded as a failed job rather than crashing the process.
func (r *Runner) Run(ctx context.Context, t *Tracker, req Request) {
	logger := r.logger.With(zap.String("job_id", t.ID().String()))
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v", rec)
			logger.Error("job panicked",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			t.AddLog(msg)
			t.SetStatus(StatusFailed, msg)
		}
	}()
	t.SetStatus(StatusStarting, "")
	t.AddLog("initializing crawler")

	results, err := r.crawl(ctx, t, req, logger)
	if err != nil {
		logger.Error("crawl failed", zap.Error(err))
		t.AddLog("crawl failed: " + err.Error())
		t.SetStatus(StatusError, err.Error())
		return
	}

	results = truncateResults(results, req.MaxPages)
	t.SetResult(results)
	t.AddLog(fmt.Sprintf("crawl finished with %d pages", len(results)))

	t.SetStatus(StatusStoring, "")
	r.persist(ctx, t, results, logger)

	t.SetStatus(StatusCompleted, "")
	logger.Info("job completed", zap.Int("pages", len(results)))
}

func (r *Runner) crawl(ctx context.Context, t *Tracker, req Request, logger *zap.Logger) (crawler.ResultMap, error) {
	llmCfg := r.cfg.LLM
	if req.Model != "" {
		llmCfg.Model = req.Model
	}
	if req.EmbeddingModel != "" {
		llmCfg.EmbeddingModel = req.EmbeddingModel
	}
	if req.SystemPrompt != "" {
		llmCfg.SystemPrompt = req.SystemPrompt
	}
	llmClient := llm.NewClient(llmCfg)

	processor := crawler.NewProcessor(crawler.ProcessorConfig{
		AllowedDomains: req.AllowedDomains,
		MaxChunkSize:   r.cfg.MaxChunkSize,
		Extractor:      extract.New(r.cfg.Extract, logger),
		Summarizer:     llmClient,
		Embedder:       llmClient,
		Reporter:       t,
		Logger:         logger,
	})
	engine := crawler.NewEngine(crawler.EngineConfig{
		Processor: processor,
		Limiter:   ratelimit.New(r.cfg.MaxRequestsPerSecond, r.cfg.MinRequestInterval),
		Reporter:  t,
		Logger:    logger,
	})

	t.SetStatus(StatusCrawling, "")

	if req.Sitemap {
		parser := crawler.NewSitemapParser(&http.Client{Timeout: r.cfg.SitemapTimeout}, logger)
		t.AddLog("parsing sitemap: " + req.URL)
		urls := parser.Parse(ctx, req.URL)
		if len(urls) == 0 {
			return nil, fmt.Errorf("sitemap %s yielded no URLs", req.URL)
		}
		if req.MaxPages > 0 && len(urls) > req.MaxPages {
			urls = urls[:req.MaxPages]
		}
		t.AddLog(fmt.Sprintf("crawling %d URLs from sitemap", len(urls)))
		return engine.CrawlMany(ctx, urls, req.MaxDepth, req.Concurrency), nil
	}

	if len(req.URLs) > 0 {
		t.AddLog(fmt.Sprintf("crawling %d seed URLs", len(req.URLs)))
		return engine.CrawlMany(ctx, req.URLs, req.MaxDepth, req.Concurrency), nil
	}

	t.AddLog("starting crawl from: " + req.URL)
	return engine.VerifyLinks(ctx, req.URL, req.MaxDepth), nil
}

// persist writes the artifact and, when a store is configured, the remote
// rows. Storage trouble is logged on the job but never fails it; the crawl
// output already exists.
func (r *Runner) persist(ctx context.Context, t *Tracker, results crawler.ResultMap, logger *zap.Logger) {
	if r.cfg.ArtifactDir != "" {
		writer := storage.NewArtifactWriter(r.cfg.ArtifactDir, logger)
		path, err := writer.Write(results)
		if err != nil {
			logger.Warn("artifact write failed", zap.Error(err))
			t.AddLog("failed to write local results file: " + err.Error())
		} else {
			t.AddLog("wrote results to " + path)
		}
	}

	if r.cfg.Store == nil {
		return
	}
	t.AddLog("storing results in database")
	stored, failed := storage.NewWriter(r.cfg.Store, logger).WriteResults(ctx, results)
	t.AddLog(fmt.Sprintf("stored %d pages, %d failed", stored, failed))
}

// truncateResults drops entries past the page cap. Map iteration order is
// unspecified, so which surplus pages are dropped is arbitrary but the cap is
// exact.
func truncateResults(results crawler.ResultMap, maxPages int) crawler.ResultMap {
	if maxPages <= 0 || len(results) <= maxPages {
		return results
	}
	out := make(crawler.ResultMap, maxPages)
	for url, rec := range results {
		if len(out) == maxPages {
			break
		}
		out[url] = rec
	}
	return out
}
