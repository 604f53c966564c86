// Package ratelimit bounds the request rate shared by all workers of one
// crawl engine.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/crawlforge/deepcrawl/internal/metrics"
)

// DefaultMinInterval is the minimum spacing between consecutive requests.
const DefaultMinInterval = 100 * time.Millisecond

const window = time.Second

// Limiter allows at most maxRequests acquisitions per rolling one-second
// window, plus a minimum spacing between consecutive acquisitions. The
// timestamp ledger is shared by all workers under a single mutex; the
// spacing component rides on x/time/rate with burst 1.
type Limiter struct {
	mu         sync.Mutex
	timestamps []time.Time
	max        int
	spacer     *rate.Limiter
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// New builds a Limiter. maxRequests <= 0 disables the window bound;
// minInterval <= 0 disables spacing.
func New(maxRequests int, minInterval time.Duration) *Limiter {
	spacer := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		spacer = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &Limiter{
		max:    maxRequests,
		spacer: spacer,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Acquire blocks until issuing one more request stays within the rolling
// window budget and the minimum spacing. It returns early only when ctx is
// done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := l.now()

	if l.max > 0 {
		if err := l.waitForWindow(ctx); err != nil {
			return err
		}
	}
	if err := l.spacer.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit spacing wait: %w", err)
	}

	if waited := l.now().Sub(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(waited)
	}
	return nil
}

func (l *Limiter) waitForWindow(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.evict(now)
		if len(l.timestamps) < l.max {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return nil
		}
		// Window full: sleep until the oldest entry ages out, then
		// re-check, since another worker may have claimed the slot.
		wait := l.timestamps[0].Add(window).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return fmt.Errorf("rate limit window wait: %w", err)
		}
	}
}

// evict drops ledger entries older than the rolling window. Callers hold mu.
func (l *Limiter) evict(now time.Time) {
	cut := 0
	// An entry exactly window old is already spent, so eviction is
	// inclusive; the post-sleep re-check relies on that.
	for cut < len(l.timestamps) && now.Sub(l.timestamps[cut]) >= window {
		cut++
	}
	if cut > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[cut:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
