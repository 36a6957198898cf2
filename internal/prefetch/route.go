// internal/prefetch/route.go
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FairForge/navaccel/internal/cache"
	"github.com/FairForge/navaccel/internal/metrics"
	"github.com/FairForge/navaccel/internal/nav"
	"github.com/FairForge/navaccel/internal/scheduler"
)

// RoutePrefetcher warms route code ahead of navigation. Loads are best
// effort: failures are retried with exponential backoff and then dropped,
// never returned to the caller.
type RoutePrefetcher struct {
	cache   *cache.Manager[any]
	loader  Loader
	sched   scheduler.Scheduler
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Collector

	// background work (hover timers, retries) runs on baseCtx
	baseCtx context.Context
	cancel  context.CancelFunc

	mu          sync.Mutex
	queue       map[string]*QueueItem
	prefetched  map[string]struct{}
	hovers      map[string]scheduler.Token
	retryTimers map[string]scheduler.Token
	closed      bool
}

// NewRoutePrefetcher creates a route prefetcher. sched, logger and m may be
// nil.
func NewRoutePrefetcher(c *cache.Manager[any], loader Loader, sched scheduler.Scheduler, cfg Config, logger *zap.Logger, m *metrics.Collector) (*RoutePrefetcher, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: cache is required", ErrInvalidConfig)
	}
	if loader == nil {
		return nil, fmt.Errorf("%w: loader is required", ErrInvalidConfig)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sched == nil {
		sched = scheduler.NewRealScheduler()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RoutePrefetcher{
		cache:       c,
		loader:      loader,
		sched:       sched,
		cfg:         cfg,
		limiter:     limiter,
		logger:      logger.Named("prefetch.route"),
		metrics:     m,
		baseCtx:     ctx,
		cancel:      cancel,
		queue:       make(map[string]*QueueItem),
		prefetched:  make(map[string]struct{}),
		hovers:      make(map[string]scheduler.Token),
		retryTimers: make(map[string]scheduler.Token),
	}, nil
}

// PrefetchRoute loads path unless it is already warm, queued, or the cache
// is at its ceiling. It returns once the first attempt finishes; retries
// continue in the background.
func (r *RoutePrefetcher) PrefetchRoute(ctx context.Context, path string, priority nav.Priority) {
	r.report(path, r.prefetchRoute(ctx, path, priority))
}

// PrefetchOnHover schedules a high priority prefetch after delay, replacing
// any pending hover for the same path. A delay <= 0 uses the configured
// hover delay.
func (r *RoutePrefetcher) PrefetchOnHover(path string, delay time.Duration) {
	if delay <= 0 {
		delay = r.cfg.HoverDelay
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if tok, ok := r.hovers[path]; ok {
		r.sched.Cancel(tok)
	}

	var tok scheduler.Token
	tok = r.sched.Schedule(delay, func() { r.fireHover(path, &tok) })
	r.hovers[path] = tok
}

// CancelHoverPrefetch drops a pending hover timer. A load that already
// started is not affected.
func (r *RoutePrefetcher) CancelHoverPrefetch(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, ok := r.hovers[path]
	if !ok {
		return false
	}
	delete(r.hovers, path)
	return r.sched.Cancel(tok)
}

// HoverPending reports whether a hover timer is waiting for path
func (r *RoutePrefetcher) HoverPending(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.hovers[path]
	return ok
}

// PrefetchOnFocus prefetches path immediately at critical priority
func (r *RoutePrefetcher) PrefetchOnFocus(ctx context.Context, path string) {
	r.PrefetchRoute(ctx, path, nav.PriorityCritical)
}

// PrefetchBatch prefetches routes one at a time, most urgent first
func (r *RoutePrefetcher) PrefetchBatch(ctx context.Context, routes []nav.PredictedRoute) {
	ordered := make([]nav.PredictedRoute, len(routes))
	copy(ordered, routes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Rank() < ordered[j].Priority.Rank()
	})

	for _, pr := range ordered {
		if err := ctx.Err(); err != nil {
			r.logger.Debug("batch cancelled", zap.Error(err))
			return
		}
		r.PrefetchRoute(ctx, pr.Path, pr.Priority)
	}
}

// IsPrefetched reports whether path was loaded by this prefetcher or has a
// live marker in the cache
func (r *RoutePrefetcher) IsPrefetched(path string) bool {
	r.mu.Lock()
	_, ok := r.prefetched[path]
	r.mu.Unlock()
	if ok {
		return true
	}
	return r.cache.Has(RouteMarkerKey(path))
}

// QueueStatus returns a snapshot of the queue, most urgent first
func (r *RoutePrefetcher) QueueStatus() []QueueItem {
	r.mu.Lock()
	items := make([]QueueItem, 0, len(r.queue))
	for _, item := range r.queue {
		items = append(items, *item)
	}
	r.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if ri, rj := items[i].Priority.Rank(), items[j].Priority.Rank(); ri != rj {
			return ri < rj
		}
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.Before(items[j].Timestamp)
		}
		return items[i].Route < items[j].Route
	})
	return items
}

// Item returns the queue item for path
func (r *RoutePrefetcher) Item(path string) (QueueItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.queue[path]
	if !ok {
		return QueueItem{}, false
	}
	return *item, true
}

// Clear cancels hover and retry timers and forgets queue and prefetched
// state. Cache markers are left to expire.
func (r *RoutePrefetcher) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

// Close clears the prefetcher and refuses further work
func (r *RoutePrefetcher) Close() {
	r.mu.Lock()
	r.clearLocked()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
}

func (r *RoutePrefetcher) clearLocked() {
	for _, tok := range r.hovers {
		r.sched.Cancel(tok)
	}
	for _, tok := range r.retryTimers {
		r.sched.Cancel(tok)
	}
	r.hovers = make(map[string]scheduler.Token)
	r.retryTimers = make(map[string]scheduler.Token)
	r.queue = make(map[string]*QueueItem)
	r.prefetched = make(map[string]struct{})
}

func (r *RoutePrefetcher) prefetchRoute(ctx context.Context, path string, priority nav.Priority) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if r.IsPrefetched(path) {
		return ErrAlreadyPrefetched
	}
	if size, ceiling := r.cache.Size(), r.cache.Config().MaxBytes; size >= ceiling {
		return fmt.Errorf("%w: %d of %d bytes", ErrMemoryPressure, size, ceiling)
	}

	r.mu.Lock()
	if existing, ok := r.queue[path]; ok && existing.Status.Active() {
		r.mu.Unlock()
		return ErrInFlight
	}
	if r.limiter != nil && !r.limiter.Allow() {
		r.mu.Unlock()
		return ErrRateLimited
	}
	item := &QueueItem{
		ID:        uuid.NewString(),
		Route:     path,
		Priority:  priority,
		Type:      KindRoute,
		Timestamp: r.sched.Now(),
		Status:    StatusPending,
	}
	r.queue[path] = item
	r.mu.Unlock()

	return r.attempt(ctx, item)
}

// attempt runs one load for item and settles its status. It returns the
// load error, if any, after scheduling a retry or marking the item failed.
func (r *RoutePrefetcher) attempt(ctx context.Context, item *QueueItem) error {
	r.mu.Lock()
	if r.queue[item.Route] != item {
		r.mu.Unlock()
		return nil
	}
	item.Status = StatusLoading
	attemptNo := item.Retries + 1
	r.mu.Unlock()

	start := time.Now()
	err := r.loader.Load(ctx, item.Route)
	elapsed := time.Since(start)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Cleared while loading
	current := r.queue[item.Route] == item

	if err == nil {
		r.metrics.PrefetchAttempt(metrics.KindRoute, metrics.OutcomeSuccess, elapsed)
		if !current {
			return nil
		}
		item.Status = StatusComplete
		item.LastError = ""
		r.prefetched[item.Route] = struct{}{}
		r.cache.Set(RouteMarkerKey(item.Route), true, r.cfg.RouteMarkerTTL)
		r.logger.Debug("route prefetched",
			zap.String("route", item.Route),
			zap.Int("attempt", attemptNo),
			zap.Duration("elapsed", elapsed),
		)
		return nil
	}

	r.metrics.PrefetchAttempt(metrics.KindRoute, metrics.OutcomeFailure, elapsed)
	loadErr := &LoadError{Route: item.Route, Attempt: attemptNo, Err: err}
	if !current {
		return loadErr
	}
	item.LastError = err.Error()

	if item.Retries < r.cfg.retries() {
		delay := r.cfg.RetryBaseDelay << item.Retries
		item.Retries++
		item.Status = StatusPending

		var tok scheduler.Token
		tok = r.sched.Schedule(delay, func() { r.retry(item, &tok) })
		r.retryTimers[item.Route] = tok

		r.metrics.PrefetchRetry()
		r.logger.Warn("route prefetch failed, retrying",
			zap.String("route", item.Route),
			zap.Int("attempt", attemptNo),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		return loadErr
	}

	item.Status = StatusFailed
	r.logger.Warn("route prefetch abandoned",
		zap.String("route", item.Route),
		zap.Int("attempts", attemptNo),
		zap.Error(err),
	)
	return loadErr
}

// tok is read under r.mu; the scheduling caller assigns it while holding
// the same lock.
func (r *RoutePrefetcher) retry(item *QueueItem, tok *scheduler.Token) {
	r.mu.Lock()
	if r.retryTimers[item.Route] == *tok {
		delete(r.retryTimers, item.Route)
	}
	closed := r.closed
	r.mu.Unlock()

	if closed {
		return
	}
	_ = r.attempt(r.baseCtx, item)
}

func (r *RoutePrefetcher) fireHover(path string, tok *scheduler.Token) {
	r.mu.Lock()
	if current, ok := r.hovers[path]; !ok || current != *tok {
		r.mu.Unlock()
		return
	}
	delete(r.hovers, path)
	r.mu.Unlock()

	r.PrefetchRoute(r.baseCtx, path, nav.PriorityHigh)
}

// report turns an internal result into logs and metrics
func (r *RoutePrefetcher) report(path string, err error) {
	if err == nil {
		return
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		// attempt already logged it
		return
	}

	r.metrics.PrefetchSkipped(metrics.KindRoute, skipReason(err))
	if errors.Is(err, ErrMemoryPressure) || errors.Is(err, ErrRateLimited) {
		r.logger.Warn("route prefetch refused", zap.String("route", path), zap.Error(err))
		return
	}
	r.logger.Debug("route prefetch skipped", zap.String("route", path), zap.Error(err))
}
