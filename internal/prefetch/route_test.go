package prefetch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FairForge/navaccel/internal/cache"
	"github.com/FairForge/navaccel/internal/metrics"
	"github.com/FairForge/navaccel/internal/nav"
	"github.com/FairForge/navaccel/internal/scheduler"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// recordingLoader counts loads per path and fails while failing is set
type recordingLoader struct {
	mu      sync.Mutex
	clock   scheduler.Clock
	calls   []string
	times   []time.Time
	failing bool
}

func (l *recordingLoader) Load(_ context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, path)
	l.times = append(l.times, l.clock.Now())
	if l.failing {
		return errors.New("chunk load failed")
	}
	return nil
}

func (l *recordingLoader) setFailing(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failing = v
}

func (l *recordingLoader) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type routeFixture struct {
	rp     *RoutePrefetcher
	sched  *scheduler.ManualScheduler
	cache  *cache.Manager[any]
	loader *recordingLoader
}

func newRouteFixture(t *testing.T, cfg Config, cacheCfg cache.Config, logger *zap.Logger, m *metrics.Collector) *routeFixture {
	t.Helper()
	sched := scheduler.NewManualScheduler(epoch)
	c, err := cache.NewManager[any](cacheCfg, sched, nil, nil)
	require.NoError(t, err)

	loader := &recordingLoader{clock: sched}
	rp, err := NewRoutePrefetcher(c, loader, sched, cfg, logger, m)
	require.NoError(t, err)
	t.Cleanup(rp.Close)

	return &routeFixture{rp: rp, sched: sched, cache: c, loader: loader}
}

func TestRoutePrefetcher_PrefetchRoute(t *testing.T) {
	f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)

	f.rp.PrefetchRoute(context.Background(), "/dashboard/deposit", nav.PriorityCritical)

	assert.Equal(t, []string{"/dashboard/deposit"}, f.loader.Calls())
	assert.True(t, f.rp.IsPrefetched("/dashboard/deposit"))
	assert.True(t, f.cache.Has("route:/dashboard/deposit"))

	entry, ok := f.cache.Entry("route:/dashboard/deposit")
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, entry.TTL)

	item, ok := f.rp.Item("/dashboard/deposit")
	require.True(t, ok)
	assert.Equal(t, StatusComplete, item.Status)
	assert.Equal(t, KindRoute, item.Type)
	assert.Equal(t, nav.PriorityCritical, item.Priority)
	assert.Equal(t, epoch, item.Timestamp)
	_, err := uuid.Parse(item.ID)
	assert.NoError(t, err)
}

func TestRoutePrefetcher_Dedup(t *testing.T) {
	t.Run("sequential calls load once", func(t *testing.T) {
		f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)

		f.rp.PrefetchRoute(context.Background(), "/history", nav.PriorityHigh)
		f.rp.PrefetchRoute(context.Background(), "/history", nav.PriorityHigh)
		err := f.rp.prefetchRoute(context.Background(), "/history", nav.PriorityHigh)

		assert.ErrorIs(t, err, ErrAlreadyPrefetched)
		assert.Len(t, f.loader.Calls(), 1)
	})

	t.Run("live marker counts as prefetched", func(t *testing.T) {
		f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)
		f.cache.Set("route:/history", true, time.Minute)

		err := f.rp.prefetchRoute(context.Background(), "/history", nav.PriorityHigh)

		assert.ErrorIs(t, err, ErrAlreadyPrefetched)
		assert.Empty(t, f.loader.Calls())
	})

	t.Run("concurrent call while loading is skipped", func(t *testing.T) {
		sched := scheduler.NewManualScheduler(epoch)
		c, err := cache.NewManager[any](cache.Config{}, sched, nil, nil)
		require.NoError(t, err)

		started := make(chan struct{})
		release := make(chan struct{})
		var loads atomic.Int32
		loader := LoaderFunc(func(ctx context.Context, path string) error {
			loads.Add(1)
			close(started)
			<-release
			return nil
		})
		rp, err := NewRoutePrefetcher(c, loader, sched, Config{}, nil, nil)
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			rp.PrefetchRoute(context.Background(), "/transfer", nav.PriorityCritical)
			close(done)
		}()
		<-started

		err = rp.prefetchRoute(context.Background(), "/transfer", nav.PriorityCritical)
		assert.ErrorIs(t, err, ErrInFlight)

		item, ok := rp.Item("/transfer")
		require.True(t, ok)
		assert.Equal(t, StatusLoading, item.Status)

		close(release)
		<-done
		assert.Equal(t, int32(1), loads.Load())
		assert.True(t, rp.IsPrefetched("/transfer"))
	})
}

func TestRoutePrefetcher_RetryBackoff(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg := prometheus.NewRegistry()
	f := newRouteFixture(t, Config{}, cache.Config{}, zap.New(core), metrics.NewCollector(reg))
	f.loader.setFailing(true)

	err := f.rp.prefetchRoute(context.Background(), "/admin/users", nav.PriorityMedium)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, 1, loadErr.Attempt)
	assert.Equal(t, "/admin/users", loadErr.Route)

	item, _ := f.rp.Item("/admin/users")
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 1, item.Retries)
	assert.Equal(t, "chunk load failed", item.LastError)

	// Each retry waits base * 2^n
	for _, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		due, ok := f.sched.NextDue()
		require.True(t, ok)
		assert.Equal(t, want, due)
		f.sched.Advance(due)
	}

	calls := f.loader.Calls()
	require.Len(t, calls, 4, "one attempt plus three retries")
	assert.Equal(t, []time.Time{
		epoch,
		epoch.Add(time.Second),
		epoch.Add(3 * time.Second),
		epoch.Add(7 * time.Second),
	}, f.loader.times)

	item, _ = f.rp.Item("/admin/users")
	assert.Equal(t, StatusFailed, item.Status)
	assert.Equal(t, 3, item.Retries)
	assert.Zero(t, f.sched.Pending())
	assert.False(t, f.rp.IsPrefetched("/admin/users"))

	assert.Equal(t, 3, logs.FilterMessage("route prefetch failed, retrying").Len())
	assert.Equal(t, 1, logs.FilterMessage("route prefetch abandoned").Len())

	expected := `
# HELP navaccel_prefetch_retries_total Total number of route prefetch retries scheduled
# TYPE navaccel_prefetch_retries_total counter
navaccel_prefetch_retries_total 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "navaccel_prefetch_retries_total"))
}

func TestRoutePrefetcher_RetryRecovers(t *testing.T) {
	f := newRouteFixture(t, Config{RetryBaseDelay: 500 * time.Millisecond}, cache.Config{}, nil, nil)
	f.loader.setFailing(true)

	f.rp.PrefetchRoute(context.Background(), "/transfer", nav.PriorityCritical)
	f.loader.setFailing(false)
	f.sched.Advance(500 * time.Millisecond)

	item, _ := f.rp.Item("/transfer")
	assert.Equal(t, StatusComplete, item.Status)
	assert.Empty(t, item.LastError)
	assert.True(t, f.rp.IsPrefetched("/transfer"))
	assert.Len(t, f.loader.Calls(), 2)
}

func TestRoutePrefetcher_FailedItemCanBeRetriedLater(t *testing.T) {
	f := newRouteFixture(t, Config{MaxRetries: -1}, cache.Config{}, nil, nil)
	f.loader.setFailing(true)

	f.rp.PrefetchRoute(context.Background(), "/reports", nav.PriorityLow)
	first, _ := f.rp.Item("/reports")
	require.Equal(t, StatusFailed, first.Status)
	assert.Zero(t, f.sched.Pending(), "retries disabled")

	f.loader.setFailing(false)
	f.rp.PrefetchRoute(context.Background(), "/reports", nav.PriorityLow)

	second, _ := f.rp.Item("/reports")
	assert.Equal(t, StatusComplete, second.Status)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, f.loader.Calls(), 2)
}

func TestRoutePrefetcher_MemoryPressure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newRouteFixture(t, Config{}, cache.Config{MaxBytes: 64}, zap.New(core), nil)

	f.cache.Set("blob", strings.Repeat("x", 100), 0)
	require.GreaterOrEqual(t, f.cache.Size(), int64(64))

	err := f.rp.prefetchRoute(context.Background(), "/dashboard", nav.PriorityCritical)
	assert.ErrorIs(t, err, ErrMemoryPressure)

	f.rp.PrefetchRoute(context.Background(), "/dashboard", nav.PriorityCritical)
	assert.Empty(t, f.loader.Calls())
	assert.Equal(t, 1, logs.FilterMessage("route prefetch refused").Len())
	assert.Equal(t, 1, len(f.cache.Keys()), "backpressure does not evict")
}

func TestRoutePrefetcher_MarkerExpiry(t *testing.T) {
	f := newRouteFixture(t, Config{RouteMarkerTTL: time.Minute}, cache.Config{}, nil, nil)

	f.rp.PrefetchRoute(context.Background(), "/history", nav.PriorityHigh)
	f.rp.Clear()
	assert.True(t, f.rp.IsPrefetched("/history"), "marker still live")

	f.sched.Advance(time.Minute)
	assert.False(t, f.rp.IsPrefetched("/history"))

	f.rp.PrefetchRoute(context.Background(), "/history", nav.PriorityHigh)
	assert.Len(t, f.loader.Calls(), 2)
}

func TestRoutePrefetcher_Hover(t *testing.T) {
	t.Run("debounces repeated hovers", func(t *testing.T) {
		f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)

		f.rp.PrefetchOnHover("/transfer", 0)
		f.sched.Advance(50 * time.Millisecond)
		f.rp.PrefetchOnHover("/transfer", 0)
		assert.Equal(t, 1, f.sched.Pending())

		f.sched.Advance(60 * time.Millisecond)
		assert.Empty(t, f.loader.Calls(), "first timer was replaced")
		assert.True(t, f.rp.HoverPending("/transfer"))

		f.sched.Advance(40 * time.Millisecond)
		assert.Equal(t, []string{"/transfer"}, f.loader.Calls())
		assert.False(t, f.rp.HoverPending("/transfer"))

		item, _ := f.rp.Item("/transfer")
		assert.Equal(t, nav.PriorityHigh, item.Priority)
	})

	t.Run("explicit delay", func(t *testing.T) {
		f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)

		f.rp.PrefetchOnHover("/transfer", 300*time.Millisecond)
		f.sched.Advance(299 * time.Millisecond)
		assert.Empty(t, f.loader.Calls())
		f.sched.Advance(time.Millisecond)
		assert.Len(t, f.loader.Calls(), 1)
	})

	t.Run("cancel before the timer fires", func(t *testing.T) {
		f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)

		f.rp.PrefetchOnHover("/transfer", 0)
		assert.True(t, f.rp.CancelHoverPrefetch("/transfer"))
		assert.False(t, f.rp.CancelHoverPrefetch("/transfer"))

		f.sched.Advance(time.Second)
		assert.Empty(t, f.loader.Calls())
	})

	t.Run("cancel after the timer fired is a no-op", func(t *testing.T) {
		f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)

		f.rp.PrefetchOnHover("/transfer", 0)
		f.sched.Advance(100 * time.Millisecond)
		assert.False(t, f.rp.CancelHoverPrefetch("/transfer"))
		assert.True(t, f.rp.IsPrefetched("/transfer"))
	})
}

func TestRoutePrefetcher_Focus(t *testing.T) {
	f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)

	f.rp.PrefetchOnFocus(context.Background(), "/withdraw")

	assert.Equal(t, []string{"/withdraw"}, f.loader.Calls())
	item, _ := f.rp.Item("/withdraw")
	assert.Equal(t, nav.PriorityCritical, item.Priority)
}

func TestRoutePrefetcher_Batch(t *testing.T) {
	t.Run("issues in priority order", func(t *testing.T) {
		f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)

		f.rp.PrefetchBatch(context.Background(), []nav.PredictedRoute{
			{Path: "/low", Priority: nav.PriorityLow},
			{Path: "/critical", Priority: nav.PriorityCritical},
			{Path: "/medium", Priority: nav.PriorityMedium},
			{Path: "/high", Priority: nav.PriorityHigh},
			{Path: "/critical-2", Priority: nav.PriorityCritical},
		})

		assert.Equal(t, []string{"/critical", "/critical-2", "/high", "/medium", "/low"}, f.loader.Calls())

		var routes []string
		for _, item := range f.rp.QueueStatus() {
			routes = append(routes, item.Route)
		}
		assert.Equal(t, []string{"/critical", "/critical-2", "/high", "/medium", "/low"}, routes)
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f.rp.PrefetchBatch(ctx, []nav.PredictedRoute{{Path: "/a", Priority: nav.PriorityCritical}})
		assert.Empty(t, f.loader.Calls())
	})
}

func TestRoutePrefetcher_RateLimit(t *testing.T) {
	f := newRouteFixture(t, Config{RatePerSecond: 0.001, Burst: 1}, cache.Config{}, nil, nil)

	require.NoError(t, f.rp.prefetchRoute(context.Background(), "/a", nav.PriorityCritical))
	err := f.rp.prefetchRoute(context.Background(), "/b", nav.PriorityCritical)

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []string{"/a"}, f.loader.Calls())
	_, queued := f.rp.Item("/b")
	assert.False(t, queued)
}

func TestRoutePrefetcher_ClearAndClose(t *testing.T) {
	f := newRouteFixture(t, Config{}, cache.Config{}, nil, nil)
	f.loader.setFailing(true)

	f.rp.PrefetchRoute(context.Background(), "/failing", nav.PriorityHigh)
	f.rp.PrefetchOnHover("/hovered", 0)
	require.Equal(t, 2, f.sched.Pending())

	f.rp.Clear()

	assert.Zero(t, f.sched.Pending(), "timers cancelled")
	assert.Empty(t, f.rp.QueueStatus())
	assert.False(t, f.rp.HoverPending("/hovered"))
	f.sched.Advance(time.Minute)
	assert.Len(t, f.loader.Calls(), 1)

	f.rp.Close()
	err := f.rp.prefetchRoute(context.Background(), "/after", nav.PriorityCritical)
	assert.ErrorIs(t, err, ErrClosed)
	f.rp.PrefetchOnHover("/after", 0)
	assert.Zero(t, f.sched.Pending())
}

func TestNewRoutePrefetcher_Validation(t *testing.T) {
	c, err := cache.NewManager[any](cache.Config{}, nil, nil, nil)
	require.NoError(t, err)
	noop := LoaderFunc(func(context.Context, string) error { return nil })

	_, err = NewRoutePrefetcher(nil, noop, nil, Config{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRoutePrefetcher(c, nil, nil, Config{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRoutePrefetcher(c, noop, nil, Config{HoverDelay: -time.Second}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRoutePrefetcher(c, noop, nil, Config{RatePerSecond: -1}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
