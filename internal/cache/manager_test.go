package cache

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FairForge/navaccel/internal/scheduler"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// newSizedManager stores ints whose value is their own byte size
func newSizedManager(t *testing.T, maxBytes int64) (*Manager[int], *scheduler.ManualScheduler) {
	t.Helper()
	clock := scheduler.NewManualScheduler(epoch)
	m, err := NewManager[int](Config{MaxBytes: maxBytes}, clock, zap.NewNop(), nil)
	require.NoError(t, err)
	m.SetSizeEstimator(func(v int) (int64, error) { return int64(v), nil })
	return m, clock
}

func TestManager_Basic(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		m, _ := newSizedManager(t, 1000)

		m.Set("a", 10, time.Minute)
		v, ok := m.Get("a")

		assert.True(t, ok)
		assert.Equal(t, 10, v)
	})

	t.Run("missing key", func(t *testing.T) {
		m, _ := newSizedManager(t, 1000)

		_, ok := m.Get("missing")
		assert.False(t, ok)
		assert.False(t, m.Has("missing"))
		assert.Equal(t, int64(1), m.Stats().Misses)
	})

	t.Run("get updates access stats, has does not", func(t *testing.T) {
		m, clock := newSizedManager(t, 1000)
		m.Set("a", 10, time.Minute)

		clock.Advance(time.Second)
		assert.True(t, m.Has("a"))
		assert.True(t, m.Has("a"))
		entry, ok := m.Entry("a")
		require.True(t, ok)
		assert.Equal(t, int64(0), entry.AccessCount)
		assert.Equal(t, epoch, entry.LastAccessed)

		_, _ = m.Get("a")
		_, _ = m.Get("a")
		entry, _ = m.Entry("a")
		assert.Equal(t, int64(2), entry.AccessCount)
		assert.Equal(t, epoch.Add(time.Second), entry.LastAccessed)
	})

	t.Run("overwrite resets timestamps and size", func(t *testing.T) {
		m, clock := newSizedManager(t, 1000)
		m.Set("a", 10, time.Minute)
		_, _ = m.Get("a")

		clock.Advance(30 * time.Second)
		m.Set("a", 25, time.Minute)

		entry, ok := m.Entry("a")
		require.True(t, ok)
		assert.Equal(t, epoch.Add(30*time.Second), entry.Timestamp)
		assert.Equal(t, int64(0), entry.AccessCount)
		assert.Equal(t, int64(25), m.Size())
	})

	t.Run("delete and clear", func(t *testing.T) {
		m, _ := newSizedManager(t, 1000)
		m.Set("a", 10, time.Minute)
		m.Set("b", 20, time.Minute)

		m.Delete("a")
		assert.False(t, m.Has("a"))
		assert.Equal(t, int64(20), m.Size())

		m.Delete("a") // idempotent
		m.Clear()
		assert.Equal(t, int64(0), m.Size())
		assert.Empty(t, m.Keys())
	})

	t.Run("delete prefix", func(t *testing.T) {
		m, _ := newSizedManager(t, 1000)
		m.Set("data:/a", 1, time.Minute)
		m.Set("data:/a?x=1", 1, time.Minute)
		m.Set("route:/a", 1, time.Minute)

		assert.Equal(t, 2, m.DeletePrefix("data:/a"))
		assert.Equal(t, []string{"route:/a"}, m.Keys())
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		_, err := NewManager[int](Config{MaxBytes: -1}, nil, nil, nil)
		assert.Error(t, err)
	})
}

func TestManager_TTL(t *testing.T) {
	t.Run("entry disappears once ttl elapses", func(t *testing.T) {
		m, clock := newSizedManager(t, 1000)
		m.Set("a", 10, 5*time.Second)
		m.Set("b", 10, time.Minute)

		clock.Advance(4 * time.Second)
		assert.True(t, m.Has("a"))

		clock.Advance(time.Second)
		assert.False(t, m.Has("a"))
		_, ok := m.Get("a")
		assert.False(t, ok)
		assert.Equal(t, []string{"b"}, m.Keys())
		assert.Equal(t, int64(10), m.Size())
		assert.Equal(t, int64(1), m.Stats().Expirations)
	})

	t.Run("get deletes expired entry", func(t *testing.T) {
		m, clock := newSizedManager(t, 1000)
		m.Set("a", 10, time.Second)

		clock.Advance(2 * time.Second)
		assert.Equal(t, 1, m.Stats().Items, "expiry is lazy")

		_, ok := m.Get("a")
		assert.False(t, ok)
		assert.Equal(t, 0, m.Stats().Items)
	})

	t.Run("zero ttl uses default", func(t *testing.T) {
		m, clock := newSizedManager(t, 1000)
		m.Set("a", 10, 0)

		entry, ok := m.Entry("a")
		require.True(t, ok)
		assert.Equal(t, DefaultConfig().DefaultTTL, entry.TTL)

		clock.Advance(DefaultConfig().DefaultTTL)
		assert.False(t, m.Has("a"))
	})
}

func TestManager_EvictLRU(t *testing.T) {
	t.Run("evicts oldest access first", func(t *testing.T) {
		m, clock := newSizedManager(t, 1000)
		for _, k := range []string{"a", "b", "c", "d"} {
			m.Set(k, 10, time.Hour)
			clock.Advance(time.Second)
		}
		_, _ = m.Get("a") // a becomes most recent

		evicted := m.EvictLRU(20)

		assert.Equal(t, 2, evicted)
		assert.LessOrEqual(t, m.Size(), int64(20))
		assert.Equal(t, []string{"a", "d"}, sortedKeys(m))
		assert.Equal(t, int64(2), m.Stats().Evictions)
	})

	t.Run("ties broken by insertion order", func(t *testing.T) {
		m, _ := newSizedManager(t, 1000)
		m.Set("first", 10, time.Hour)
		m.Set("second", 10, time.Hour)
		m.Set("third", 10, time.Hour)

		m.EvictLRU(15)

		assert.Equal(t, []string{"third"}, m.Keys())
	})

	t.Run("no-op when already under target", func(t *testing.T) {
		m, _ := newSizedManager(t, 1000)
		m.Set("a", 10, time.Hour)

		assert.Equal(t, 0, m.EvictLRU(10))
		assert.True(t, m.Has("a"))
	})

	t.Run("preserves priority segment of evicted keys", func(t *testing.T) {
		m, clock := newSizedManager(t, 1000)
		m.Set("route:/dashboard/deposit:high", 10, time.Hour)
		clock.Advance(time.Second)
		m.Set("route:/dashboard", 10, time.Hour)
		clock.Advance(time.Second)
		m.Set("keep", 10, time.Hour)

		m.EvictLRU(10)

		p, ok := m.PreservedPriority("/dashboard/deposit")
		assert.True(t, ok)
		assert.Equal(t, "high", p)
		_, ok = m.PreservedPriority("/dashboard")
		assert.False(t, ok)
		assert.False(t, m.Has("route:/dashboard/deposit:high"), "companion is not a cache entry")
	})

	t.Run("ignores trailing segments that are not priorities", func(t *testing.T) {
		m, clock := newSizedManager(t, 1000)
		m.Set("data:/history?t=12:30", 10, time.Hour)
		clock.Advance(time.Second)
		m.Set("keep", 10, time.Hour)

		assert.Equal(t, 1, m.EvictLRU(10))

		_, ok := m.PreservedPriority("/history?t=12")
		assert.False(t, ok)
	})

	t.Run("should evict above ceiling", func(t *testing.T) {
		m, _ := newSizedManager(t, 100)
		m.Set("a", 100, time.Hour)
		assert.False(t, m.ShouldEvict())

		m.Set("b", 1, time.Hour)
		assert.True(t, m.ShouldEvict())
	})
}

func TestManager_SizeEstimate(t *testing.T) {
	t.Run("json length approximates size", func(t *testing.T) {
		m, err := NewManager[any](Config{}, nil, nil, nil)
		require.NoError(t, err)

		m.Set("k", map[string]any{"balance": 1200, "currency": "USD"}, time.Minute)

		assert.InDelta(t, 35, m.Size(), 10)
	})

	t.Run("unserializable value falls back to default size", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		m, err := NewManager[any](Config{DefaultEntrySize: 512}, nil, zap.New(core), nil)
		require.NoError(t, err)

		m.Set("chan", make(chan int), time.Minute)

		assert.Equal(t, int64(512), m.Size())
		assert.True(t, m.Has("chan"))
		assert.Equal(t, 1, logs.FilterMessage("size estimate failed, using default").Len())
	})

	t.Run("json estimator wraps serialization error", func(t *testing.T) {
		_, err := JSONSize[any](func() {})
		assert.ErrorIs(t, err, ErrSerialization)
	})
}

func TestManager_Strategy(t *testing.T) {
	m, _ := newSizedManager(t, 1000)

	assert.Equal(t, StrategyCacheFirst, m.Strategy("unknown"))

	m.SetStrategy("balance", StrategyNetworkFirst)
	m.Set("balance", 10, time.Minute)
	entry, ok := m.Entry("balance")
	require.True(t, ok)
	assert.Equal(t, StrategyNetworkFirst, entry.Strategy)

	m.Set("other", 10, time.Minute)
	entry, _ = m.Entry("other")
	assert.Equal(t, StrategyCacheFirst, entry.Strategy)

	m.Clear()
	assert.Equal(t, StrategyNetworkFirst, m.Strategy("balance"))
	assert.True(t, StrategyCacheOnly.Valid())
	assert.False(t, Strategy("stale-while-revalidate").Valid())
}

func TestManager_Stats(t *testing.T) {
	m, _ := newSizedManager(t, 200)
	m.Set("a", 50, time.Minute)
	_, _ = m.Get("a")
	_, _ = m.Get("b")

	stats := m.Stats()
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, 0.5, stats.HitRate())
	assert.Equal(t, float64(25), stats.MemoryUsage())
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m, _ := newSizedManager(t, 1<<20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k-%d-%d", n, j%10)
				m.Set(key, 1, time.Minute)
				_, _ = m.Get(key)
				_ = m.Has(key)
				if j%25 == 0 {
					m.EvictLRU(50)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(len(m.Keys())), m.Size())
}

func sortedKeys(m *Manager[int]) []string {
	keys := m.Keys()
	sort.Strings(keys)
	return keys
}
