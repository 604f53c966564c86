package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/metrics"
)

// Config controls Broadcaster behavior.
//   - SubscriberBuffer: per-subscriber channel capacity (default 256).
//   - SinkTimeout: per-sink timeout for each Consume call (default 5s).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	SubscriberBuffer int
	SinkTimeout      time.Duration
	Logger           *zap.Logger
}

const (
	defaultSubscriberBuffer = 256
	defaultSinkTimeout      = 5 * time.Second
	dropLogInterval         = 5 * time.Second
)

// Broadcaster fans out job events to per-job subscribers and to registered
// sinks. Delivery is immediate, one event at a time, so subscribers see each
// log line as it is produced. Emit never blocks: a subscriber that cannot
// keep up has events dropped, with a rate-limited warning.
type Broadcaster struct {
	cfg    Config
	sinks  []Sink
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[chan Event]struct{}
	closed      bool

	dropped     atomic.Int64
	dropLimiter dropLimiter
}

// NewBroadcaster builds a Broadcaster with the given sinks. The returned
// value is immediately ready to accept events and subscriptions.
func NewBroadcaster(cfg Config, sinks ...Sink) *Broadcaster {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		cfg:         cfg,
		sinks:       append([]Sink(nil), sinks...),
		logger:      logger,
		subscribers: make(map[uuid.UUID]map[chan Event]struct{}),
		dropLimiter: dropLimiter{interval: dropLogInterval},
	}
}

// Emit delivers evt to every subscriber of its job and to all sinks. Invalid
// events are discarded with a debug log.
func (b *Broadcaster) Emit(evt Event) {
	if b == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		b.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.subscribers[evt.JobID]
	for ch := range subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
			metrics.ObserveProgressEventDropped()
			if b.dropLimiter.Allow(time.Now()) {
				count := b.dropped.Swap(0)
				b.logger.Warn("progress events dropped due to slow subscriber",
					zap.Int64("dropped", count),
					zap.String("job_id", evt.JobID.String()))
			}
		}
	}
	b.mu.RUnlock()

	for _, sink := range b.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.SinkTimeout)
		if err := sink.Consume(ctx, evt); err != nil {
			b.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

// Subscribe registers a listener for one job's events. The returned cancel
// function must be called exactly once; it unregisters and closes the
// channel.
func (b *Broadcaster) Subscribe(jobID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, b.cfg.SubscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	set, ok := b.subscribers[jobID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subscribers[jobID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	// Only whoever removes the channel from the map closes it, so cancel
	// racing CloseJob or Close cannot double-close.
	cancel := func() {
		b.mu.Lock()
		removed := false
		if set, ok := b.subscribers[jobID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				removed = true
			}
			if len(set) == 0 {
				delete(b.subscribers, jobID)
			}
		}
		b.mu.Unlock()
		if removed {
			close(ch)
		}
	}
	return ch, cancel
}

// CloseJob drops all subscribers of one job, closing their channels. Used
// when a job is disposed.
func (b *Broadcaster) CloseJob(jobID uuid.UUID) {
	b.mu.Lock()
	set := b.subscribers[jobID]
	delete(b.subscribers, jobID)
	b.mu.Unlock()
	for ch := range set {
		close(ch)
	}
}

// Close drops all subscribers and closes the sinks.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	all := b.subscribers
	b.subscribers = make(map[uuid.UUID]map[chan Event]struct{})
	b.mu.Unlock()

	for _, set := range all {
		for ch := range set {
			close(ch)
		}
	}
	for _, sink := range b.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			b.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
	return nil
}

type dropLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *dropLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
