package crawler

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/ratelimit"
)

// ProgressReporter receives crawl milestones. It is injected at engine
// construction so observers never have to patch engine internals. A job
// tracker implements this to drive status, counters, and the push channel.
type ProgressReporter interface {
	// Log reports one human-readable progress line.
	Log(message string)
	// PageStarted fires before a URL is handed to the processor.
	PageStarted(url string)
	// PageProcessed fires after a URL produced a PageRecord.
	PageProcessed(url string, rec *PageRecord)
}

type nopReporter struct{}

func (nopReporter) Log(string)                        {}
func (nopReporter) PageStarted(string)                {}
func (nopReporter) PageProcessed(string, *PageRecord) {}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Processor PageProcessor
	Limiter   *ratelimit.Limiter
	Reporter  ProgressReporter
	Logger    *zap.Logger
}

// Engine owns the visited set and result map for one crawl run series. Both
// are shared by all workers of the engine and mutated only under a single
// mutex; the check-then-mark on the visited set is atomic, so no URL is ever
// processed twice by the same engine instance.
type Engine struct {
	mu      sync.Mutex
	visited map[string]struct{}
	results ResultMap

	processor PageProcessor
	limiter   *ratelimit.Limiter
	reporter  ProgressReporter
	logger    *zap.Logger
}

// crawlQueueDepth bounds the multi-seed work queue. Links that arrive while
// the queue is full are processed inline by the discovering worker.
const crawlQueueDepth = 4096

// NewEngine builds an Engine. Processor is required; a nil limiter disables
// rate limiting and a nil reporter discards progress.
func NewEngine(cfg EngineConfig) *Engine {
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		visited:   make(map[string]struct{}),
		results:   make(ResultMap),
		processor: cfg.Processor,
		limiter:   cfg.Limiter,
		reporter:  reporter,
		logger:    logger,
	}
}

// task is one unit of crawl work: a URL plus the link-following hops left
// beneath it.
type task struct {
	url   string
	depth int
}

// VerifyLinks crawls recursively from a single seed, following in-domain
// links until maxDepth hops are exhausted. It returns immediately with an
// empty map, performing no side effects, when maxDepth is negative or the
// seed was already visited by this engine. The seed is marked visited before
// processing so cycles cannot re-enter it.
func (e *Engine) VerifyLinks(ctx context.Context, seed string, maxDepth int) ResultMap {
	if maxDepth < 0 {
		return ResultMap{}
	}
	if !e.markVisited(seed) {
		return ResultMap{}
	}
	e.runTask(ctx, task{url: seed, depth: maxDepth}, nil)
	return e.Results()
}

// CrawlMany crawls several seeds concurrently. The run starts with a fresh
// result map (the visited set persists for the life of the engine). Work is
// scheduled on a single bounded queue consumed by `concurrency` workers;
// every discovered link becomes a queue task carrying its remaining depth,
// and an in-flight counter closes the queue once the last task finishes.
// Individual task failures never abort the run.
func (e *Engine) CrawlMany(ctx context.Context, seeds []string, maxDepth, concurrency int) ResultMap {
	e.mu.Lock()
	e.results = make(ResultMap)
	e.mu.Unlock()

	if len(seeds) == 0 {
		e.reporter.Log("no URLs provided for crawl")
		return e.Results()
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var pending []task
	for _, seed := range seeds {
		if e.markVisited(seed) {
			pending = append(pending, task{url: seed, depth: maxDepth})
		}
	}
	if len(pending) == 0 {
		return e.Results()
	}

	queue := make(chan task, crawlQueueDepth)
	var inflight atomic.Int64
	// Seeds are counted before any worker starts so the queue cannot close
	// while they are still being enqueued.
	inflight.Store(int64(len(pending)))

	// enqueue claims an in-flight slot for the task; the caller falls back
	// to inline processing when the queue is full.
	enqueue := func(t task) bool {
		inflight.Add(1)
		select {
		case queue <- t:
			return true
		default:
			inflight.Add(-1)
			return false
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				e.runTask(ctx, t, enqueue)
				// The worker that retires the final task closes the
				// queue, releasing the others.
				if inflight.Add(-1) == 0 {
					close(queue)
				}
			}
		}()
	}

	for _, t := range pending {
		queue <- t
	}
	wg.Wait()

	results := e.Results()
	e.reporter.Log("multi-URL crawl completed")
	e.logger.Info("multi-url crawl completed",
		zap.Int("seeds", len(seeds)),
		zap.Int("pages", len(results)))
	return results
}

// runTask processes one already-visited-marked URL and then walks its links.
// Children are marked visited before being scheduled; when enqueue is nil
// (single-seed mode) or the queue is full, the child runs inline on the
// calling goroutine with depth-1, which preserves the depth bound either
// way.
func (e *Engine) runTask(ctx context.Context, t task, enqueue func(task) bool) {
	if ctx.Err() != nil {
		return
	}
	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx); err != nil {
			e.logger.Warn("rate limiter interrupted", zap.String("url", t.url), zap.Error(err))
			return
		}
	}

	e.reporter.PageStarted(t.url)
	rec, err := e.processor.Process(ctx, t.url)
	if err != nil {
		// Per-URL failures are isolated: siblings and the rest of the
		// run continue.
		e.reporter.Log("error processing " + t.url + ": " + err.Error())
		e.logger.Warn("page processing failed", zap.String("url", t.url), zap.Error(err))
		return
	}
	if rec == nil {
		return
	}

	e.mu.Lock()
	e.results[t.url] = rec
	e.mu.Unlock()
	e.reporter.PageProcessed(t.url, rec)

	if t.depth <= 0 {
		return
	}
	for _, link := range rec.Links {
		if ctx.Err() != nil {
			return
		}
		if !e.markVisited(link) {
			continue
		}
		child := task{url: link, depth: t.depth - 1}
		if enqueue != nil && enqueue(child) {
			continue
		}
		e.runTask(ctx, child, enqueue)
	}
}

// markVisited records the URL as in-flight, reporting whether this caller
// claimed it. Check and mark are a single critical section so two workers
// racing on the same URL cannot both process it.
func (e *Engine) markVisited(url string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, seen := e.visited[url]; seen {
		return false
	}
	e.visited[url] = struct{}{}
	return true
}

// VisitedCount reports how many distinct URLs this engine has claimed.
func (e *Engine) VisitedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.visited)
}

// Results returns a snapshot copy of the result map.
func (e *Engine) Results() ResultMap {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(ResultMap, len(e.results))
	for k, v := range e.results {
		out[k] = v
	}
	return out
}
