package job

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/metrics"
	"github.com/crawlforge/deepcrawl/internal/progress"
)

// ErrNotFound is returned when a job id is unknown or already disposed.
var ErrNotFound = errors.New("job not found")

// DefaultRetention is how long a finished job stays queryable before its
// state is disposed.
const DefaultRetention = 5 * time.Minute

// Manager is the in-memory job registry. Finished jobs linger for the
// retention window so clients can still fetch status and results, then their
// state and subscriber channels are disposed.
type Manager struct {
	retention   time.Duration
	broadcaster *progress.Broadcaster
	logger      *zap.Logger

	mu       sync.Mutex
	jobs     map[uuid.UUID]*Tracker
	disposal map[uuid.UUID]*time.Timer
}

// NewManager builds a Manager. retention <= 0 uses DefaultRetention.
func NewManager(retention time.Duration, broadcaster *progress.Broadcaster, logger *zap.Logger) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		retention:   retention,
		broadcaster: broadcaster,
		logger:      logger,
		jobs:        make(map[uuid.UUID]*Tracker),
		disposal:    make(map[uuid.UUID]*time.Timer),
	}
}

// Create registers a new pending job and returns its tracker.
func (m *Manager) Create(maxPages int) *Tracker {
	id := uuid.New()
	var emitter progress.Emitter = progress.NopEmitter{}
	if m.broadcaster != nil {
		emitter = m.broadcaster
	}
	t := NewTracker(id, maxPages, emitter, m.logger)

	m.mu.Lock()
	m.jobs[id] = t
	m.mu.Unlock()

	metrics.JobStarted()
	m.logger.Info("job created", zap.String("job_id", id.String()))
	return t
}

// Get returns the tracker for id.
func (m *Manager) Get(id uuid.UUID) (*Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// Finish records the job's terminal status and schedules disposal after the
// retention window.
func (m *Manager) Finish(id uuid.UUID, status Status) {
	metrics.JobFinished(string(status))

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return
	}
	if timer, ok := m.disposal[id]; ok {
		timer.Stop()
	}
	m.disposal[id] = time.AfterFunc(m.retention, func() {
		m.dispose(id)
	})
}

// Delete disposes a job immediately, cancelling any pending disposal timer.
func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	_, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.dispose(id)
	return nil
}

func (m *Manager) dispose(id uuid.UUID) {
	m.mu.Lock()
	if timer, ok := m.disposal[id]; ok {
		timer.Stop()
		delete(m.disposal, id)
	}
	_, existed := m.jobs[id]
	delete(m.jobs, id)
	m.mu.Unlock()

	if !existed {
		return
	}
	if m.broadcaster != nil {
		m.broadcaster.CloseJob(id)
	}
	m.logger.Info("job disposed", zap.String("job_id", id.String()))
}

// Len reports how many jobs are currently tracked.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}
