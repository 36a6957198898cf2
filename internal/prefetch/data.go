// internal/prefetch/data.go
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/FairForge/navaccel/internal/cache"
	"github.com/FairForge/navaccel/internal/metrics"
)

// Fetcher loads one piece of a route's data
type Fetcher struct {
	Key   string
	Fetch func(ctx context.Context, params Params) (any, error)

	// StaleTime is how long the result stays fresh; <= 0 uses the cache
	// default TTL
	StaleTime time.Duration
}

// DataPrefetcher warms the data each route needs. Every fetcher for a route
// runs in parallel and the successful results are cached together as one
// map keyed by fetcher key.
type DataPrefetcher struct {
	cache   *cache.Manager[any]
	logger  *zap.Logger
	metrics *metrics.Collector
	flight  singleflight.Group

	mu       sync.RWMutex
	registry map[string][]Fetcher
}

// NewDataPrefetcher creates a data prefetcher over registry. logger and m
// may be nil.
func NewDataPrefetcher(c *cache.Manager[any], registry map[string][]Fetcher, logger *zap.Logger, m *metrics.Collector) (*DataPrefetcher, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: cache is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &DataPrefetcher{
		cache:    c,
		logger:   logger.Named("prefetch.data"),
		metrics:  m,
		registry: make(map[string][]Fetcher, len(registry)),
	}
	for route, fetchers := range registry {
		if err := d.RegisterDataRequirements(route, fetchers); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// RegisterDataRequirements replaces the fetchers for route. An empty list
// removes the route.
func (d *DataPrefetcher) RegisterDataRequirements(route string, fetchers []Fetcher) error {
	if err := validateFetchers(route, fetchers); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(fetchers) == 0 {
		delete(d.registry, route)
		return nil
	}
	list := make([]Fetcher, len(fetchers))
	copy(list, fetchers)
	d.registry[route] = list
	return nil
}

// RegisteredRoutes lists routes with fetchers, sorted
func (d *DataPrefetcher) RegisteredRoutes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	routes := make([]string, 0, len(d.registry))
	for route := range d.registry {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}

// PrefetchData fetches and caches route's data unless it is already cached.
// Fetcher failures are logged and left out of the result.
func (d *DataPrefetcher) PrefetchData(ctx context.Context, route string, params Params) {
	err := d.prefetchData(ctx, route, params)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoData):
		d.logger.Warn("no data prefetched", zap.String("route", route), zap.Error(err))
	default:
		d.metrics.PrefetchSkipped(metrics.KindData, skipReason(err))
		d.logger.Debug("data prefetch skipped", zap.String("route", route), zap.Error(err))
	}
}

// IsDataReady reports whether route's data is cached and fresh
func (d *DataPrefetcher) IsDataReady(route string, params Params) bool {
	return d.cache.Has(DataCacheKey(route, params))
}

// Data returns a copy of the cached data for route
func (d *DataPrefetcher) Data(route string, params Params) (map[string]any, bool) {
	v, ok := d.cache.Get(DataCacheKey(route, params))
	if !ok {
		return nil, false
	}
	data, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return maps.Clone(data), true
}

// Invalidate drops the cached data for route and params
func (d *DataPrefetcher) Invalidate(route string, params Params) {
	d.cache.Delete(DataCacheKey(route, params))
}

// InvalidateAll drops the cached data for route under every parameter set
func (d *DataPrefetcher) InvalidateAll(route string) int {
	bare := DataCacheKey(route, nil)
	removed := d.cache.DeletePrefix(bare + "?")
	if d.cache.Has(bare) {
		d.cache.Delete(bare)
		removed++
	}
	return removed
}

func (d *DataPrefetcher) prefetchData(ctx context.Context, route string, params Params) error {
	d.mu.RLock()
	fetchers := d.registry[route]
	d.mu.RUnlock()

	if len(fetchers) == 0 {
		return ErrNoFetchers
	}
	key := DataCacheKey(route, params)
	if d.cache.Has(key) {
		return ErrDataReady
	}

	// Joined callers share one fetch, so it must outlive the caller that
	// started it. Context values still flow through.
	fetchCtx := context.WithoutCancel(ctx)
	_, err, shared := d.flight.Do(key, func() (any, error) {
		return nil, d.fetchAll(fetchCtx, route, key, fetchers, params)
	})
	if shared {
		d.logger.Debug("joined in-flight data prefetch", zap.String("key", key))
	}
	return err
}

type fetchResult struct {
	value any
	err   error
}

func (d *DataPrefetcher) fetchAll(ctx context.Context, route, key string, fetchers []Fetcher, params Params) error {
	results := make([]fetchResult, len(fetchers))

	// Failures are isolated, so no goroutine returns an error to the group
	var g errgroup.Group
	start := time.Now()
	for i, f := range fetchers {
		i, f := i, f
		g.Go(func() error {
			v, err := f.Fetch(ctx, params)
			results[i] = fetchResult{value: v, err: err}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	merged := make(map[string]any, len(fetchers))
	var ttl time.Duration
	var failures []error
	for i, f := range fetchers {
		res := results[i]
		if res.err != nil {
			fetchErr := &FetchError{Route: route, Key: f.Key, Err: res.err}
			failures = append(failures, fetchErr)
			d.metrics.DataFetchError(f.Key)
			d.logger.Warn("data fetcher failed",
				zap.String("route", route),
				zap.String("key", f.Key),
				zap.Error(res.err),
			)
			continue
		}
		merged[f.Key] = res.value

		stale := f.StaleTime
		if stale <= 0 {
			stale = d.cache.Config().DefaultTTL
		}
		if ttl == 0 || stale < ttl {
			ttl = stale
		}
	}

	if len(merged) == 0 {
		d.metrics.PrefetchAttempt(metrics.KindData, metrics.OutcomeFailure, elapsed)
		return fmt.Errorf("%w: %w", ErrNoData, errors.Join(failures...))
	}

	d.cache.SetStrategy(key, cache.StrategyNetworkFirst)
	d.cache.Set(key, merged, ttl)
	d.metrics.PrefetchAttempt(metrics.KindData, metrics.OutcomeSuccess, elapsed)
	d.logger.Debug("data prefetched",
		zap.String("key", key),
		zap.Int("fetched", len(merged)),
		zap.Int("failed", len(failures)),
		zap.Duration("ttl", ttl),
	)
	return nil
}

func validateFetchers(route string, fetchers []Fetcher) error {
	if route == "" {
		return fmt.Errorf("%w: route is required", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(fetchers))
	for _, f := range fetchers {
		if f.Key == "" {
			return fmt.Errorf("%w: fetcher for %s has no key", ErrInvalidConfig, route)
		}
		if f.Fetch == nil {
			return fmt.Errorf("%w: fetcher %s for %s has no fetch function", ErrInvalidConfig, f.Key, route)
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("%w: fetcher key %s repeated for %s", ErrInvalidConfig, f.Key, route)
		}
		seen[f.Key] = struct{}{}
	}
	return nil
}
