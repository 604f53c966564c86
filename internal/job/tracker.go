// Package job tracks crawl jobs: their lifecycle state, progress reporting,
// and end-to-end execution from seed URLs to stored results.
package job

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/crawler"
	"github.com/crawlforge/deepcrawl/internal/progress"
)

// Status is a crawl job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStarting  Status = "starting"
	StatusCrawling  Status = "crawling"
	StatusStoring   Status = "storing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends the job.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusFailed
}

// crawlProgressCeiling caps progress while crawling so completion is the
// only way to reach 1.0.
const crawlProgressCeiling = 0.9

// Snapshot is a point-in-time copy of a job's state, safe to serialize.
type Snapshot struct {
	ID           uuid.UUID         `json:"job_id"`
	Status       Status            `json:"status"`
	Progress     float64           `json:"progress"`
	PagesCrawled int               `json:"pages_crawled"`
	CurrentPage  string            `json:"current_page,omitempty"`
	Log          []string          `json:"log"`
	Error        string            `json:"error,omitempty"`
	Result       crawler.ResultMap `json:"-"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// Tracker holds one job's mutable state and broadcasts every change as a
// progress event. It implements crawler.ProgressReporter so the engine can
// report directly into it.
type Tracker struct {
	id       uuid.UUID
	maxPages int
	emitter  progress.Emitter
	logger   *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	status       Status
	progress     float64
	pagesCrawled int
	currentPage  string
	log          []string
	errMsg       string
	result       crawler.ResultMap
	createdAt    time.Time
	completedAt  *time.Time
}

// NewTracker builds a Tracker in the pending state.
func NewTracker(id uuid.UUID, maxPages int, emitter progress.Emitter, logger *zap.Logger) *Tracker {
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		id:        id,
		maxPages:  maxPages,
		emitter:   emitter,
		logger:    logger,
		now:       time.Now,
		status:    StatusPending,
		createdAt: time.Now().UTC(),
	}
}

// ID returns the job id.
func (t *Tracker) ID() uuid.UUID { return t.id }

// AddLog appends a message to the job log and broadcasts it immediately.
func (t *Tracker) AddLog(message string) {
	t.mu.Lock()
	t.log = append(t.log, message)
	t.mu.Unlock()

	t.logger.Debug("job log", zap.String("job_id", t.id.String()), zap.String("message", message))
	t.emitter.Emit(progress.Event{
		JobID:   t.id,
		TS:      t.now().UTC(),
		Kind:    progress.KindLog,
		Message: message,
	})
}

// SetStatus transitions the job. A terminal status sticks: later transitions
// are ignored, so a job completes or fails exactly once.
func (t *Tracker) SetStatus(status Status, errMsg string) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.status = status
	if errMsg != "" {
		t.errMsg = errMsg
	}
	if status.Terminal() {
		done := t.now().UTC()
		t.completedAt = &done
		if status == StatusCompleted {
			t.progress = 1.0
		}
	}
	t.mu.Unlock()

	t.emitStatus()
}

// SetResult stores the final result map.
func (t *Tracker) SetResult(result crawler.ResultMap) {
	t.mu.Lock()
	t.result = result
	t.mu.Unlock()
}

// Log implements crawler.ProgressReporter.
func (t *Tracker) Log(message string) { t.AddLog(message) }

// PageStarted implements crawler.ProgressReporter.
func (t *Tracker) PageStarted(url string) {
	t.mu.Lock()
	t.currentPage = url
	t.mu.Unlock()
	t.emitStatus()
}

// PageProcessed implements crawler.ProgressReporter. Progress advances with
// the page count but never past the crawl ceiling, and never moves backward.
func (t *Tracker) PageProcessed(url string, rec *crawler.PageRecord) {
	t.mu.Lock()
	if rec != nil {
		t.pagesCrawled++
		if t.maxPages > 0 {
			p := min(crawlProgressCeiling, float64(t.pagesCrawled)/float64(t.maxPages))
			if p > t.progress {
				t.progress = p
			}
		}
	}
	t.currentPage = url
	t.mu.Unlock()
	t.emitStatus()
}

// Snapshot copies the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	logCopy := make([]string, len(t.log))
	copy(logCopy, t.log)
	return Snapshot{
		ID:           t.id,
		Status:       t.status,
		Progress:     t.progress,
		PagesCrawled: t.pagesCrawled,
		CurrentPage:  t.currentPage,
		Log:          logCopy,
		Error:        t.errMsg,
		Result:       t.result,
		CreatedAt:    t.createdAt,
		CompletedAt:  t.completedAt,
	}
}

func (t *Tracker) emitStatus() {
	t.mu.Lock()
	evt := progress.Event{
		JobID:        t.id,
		TS:           t.now().UTC(),
		Kind:         progress.KindStatus,
		Status:       string(t.status),
		Progress:     t.progress,
		PagesCrawled: t.pagesCrawled,
		CurrentPage:  t.currentPage,
	}
	t.mu.Unlock()
	t.emitter.Emit(evt)
}
