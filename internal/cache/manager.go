// internal/cache/manager.go
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/navaccel/internal/metrics"
	"github.com/FairForge/navaccel/internal/nav"
	"github.com/FairForge/navaccel/internal/scheduler"
)

// priorityKeyPrefix names the companion keys written for evicted entries
// whose key ends in a priority segment (prefix:path:priority)
const priorityKeyPrefix = "priority:"

// Manager is a TTL-keyed store with size accounting and explicit LRU
// eviction. Expiry is checked lazily on access; nothing is swept in the
// background and nothing is evicted on write.
type Manager[V any] struct {
	mu           sync.Mutex
	cfg          Config
	clock        scheduler.Clock
	logger       *zap.Logger
	metrics      *metrics.Collector
	estimate     SizeEstimator[V]
	entries      map[string]*Entry[V]
	strategies   map[string]Strategy
	preserved    map[string]string
	currentBytes int64
	seq          uint64

	// Statistics
	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

// NewManager creates a cache. clock, logger and m may be nil.
func NewManager[V any](cfg Config, clock scheduler.Clock, logger *zap.Logger, m *metrics.Collector) (*Manager[V], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = scheduler.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager[V]{
		cfg:        cfg,
		clock:      clock,
		logger:     logger.Named("cache"),
		metrics:    m,
		estimate:   JSONSize[V],
		entries:    make(map[string]*Entry[V]),
		strategies: make(map[string]Strategy),
		preserved:  make(map[string]string),
	}, nil
}

// SetSizeEstimator replaces the JSON-length estimator
func (m *Manager[V]) SetSizeEstimator(fn SizeEstimator[V]) {
	if fn == nil {
		fn = JSONSize[V]
	}
	m.mu.Lock()
	m.estimate = fn
	m.mu.Unlock()
}

// Config returns the limits the cache was built with
func (m *Manager[V]) Config() Config {
	return m.cfg
}

// Set stores value under key. A ttl <= 0 uses the configured default.
// The entry keeps whatever strategy was registered for the key.
func (m *Manager[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}
	size := m.sizeOf(key, value)
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.entries[key]; exists {
		m.currentBytes -= old.Size
	}

	strategy, ok := m.strategies[key]
	if !ok {
		strategy = StrategyCacheFirst
	}

	m.seq++
	m.entries[key] = &Entry[V]{
		Key:          key,
		Value:        value,
		Timestamp:    now,
		TTL:          ttl,
		Size:         size,
		LastAccessed: now,
		Strategy:     strategy,
		seq:          m.seq,
	}
	m.currentBytes += size
	m.metrics.CacheBytes(m.currentBytes)
}

// Get returns the value for key. An expired entry is deleted and reported
// as absent.
func (m *Manager[V]) Get(key string) (V, bool) {
	var zero V
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	if !exists {
		m.misses++
		m.metrics.CacheMiss()
		return zero, false
	}
	if entry.Expired(now) {
		m.expireLocked(entry)
		m.misses++
		m.metrics.CacheMiss()
		return zero, false
	}

	entry.AccessCount++
	entry.LastAccessed = now
	m.hits++
	m.metrics.CacheHit()
	return entry.Value, true
}

// Has reports whether key holds a live entry without touching its access
// statistics
func (m *Manager[V]) Has(key string) bool {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	if !exists {
		return false
	}
	if entry.Expired(now) {
		m.expireLocked(entry)
		return false
	}
	return true
}

// Entry returns a copy of the entry's metadata and value. It applies the
// expiry check but does not count as an access.
func (m *Manager[V]) Entry(key string) (Entry[V], bool) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	if !exists {
		return Entry[V]{}, false
	}
	if entry.Expired(now) {
		m.expireLocked(entry)
		return Entry[V]{}, false
	}
	return *entry, true
}

// Delete removes key
func (m *Manager[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.entries[key]; exists {
		m.removeLocked(entry)
	}
}

// DeletePrefix removes every entry whose key starts with prefix and returns
// how many were removed
func (m *Manager[V]) DeletePrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if strings.HasPrefix(key, prefix) {
			m.removeLocked(entry)
			removed++
		}
	}
	return removed
}

// Clear drops every entry. Registered strategies are kept.
func (m *Manager[V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*Entry[V])
	m.currentBytes = 0
	m.metrics.CacheBytes(0)
}

// Keys returns the live keys in insertion order. Expired entries found on
// the way are deleted.
func (m *Manager[V]) Keys() []string {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	live := make([]*Entry[V], 0, len(m.entries))
	for _, entry := range m.entries {
		if entry.Expired(now) {
			m.expireLocked(entry)
			continue
		}
		live = append(live, entry)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })

	keys := make([]string, len(live))
	for i, entry := range live {
		keys[i] = entry.Key
	}
	return keys
}

// Size returns the estimated bytes held by all stored entries
func (m *Manager[V]) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBytes
}

// ShouldEvict reports whether the size estimate exceeds the ceiling
func (m *Manager[V]) ShouldEvict() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBytes > m.cfg.MaxBytes
}

// EvictLRU deletes least recently accessed entries until the size estimate
// is at or below targetBytes. Ties are broken by insertion order. It returns
// the number of entries removed.
func (m *Manager[V]) EvictLRU(targetBytes int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentBytes <= targetBytes {
		return 0
	}
	deficit := m.currentBytes - targetBytes

	ordered := make([]*Entry[V], 0, len(m.entries))
	for _, entry := range m.entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.LastAccessed.Equal(b.LastAccessed) {
			return a.LastAccessed.Before(b.LastAccessed)
		}
		return a.seq < b.seq
	})

	var freed int64
	evicted := 0
	for _, entry := range ordered {
		if freed >= deficit {
			break
		}
		m.preservePriorityLocked(entry.Key)
		freed += entry.Size
		m.removeLocked(entry)
		evicted++
	}

	m.evictions += int64(evicted)
	m.metrics.CacheEvicted(evicted)
	m.logger.Debug("evicted entries",
		zap.Int("count", evicted),
		zap.Int64("freed_bytes", freed),
		zap.Int64("target_bytes", targetBytes),
	)
	return evicted
}

// PreservedPriority returns the priority recorded for path when an entry
// keyed prefix:path:priority was evicted. Nothing in the layer reads it
// back yet; it is kept for re-visit heuristics.
func (m *Manager[V]) PreservedPriority(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.preserved[priorityKeyPrefix+path]
	return p, ok
}

// SetStrategy registers the strategy tag for key
func (m *Manager[V]) SetStrategy(key string, s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strategies[key] = s
	if entry, exists := m.entries[key]; exists {
		entry.Strategy = s
	}
}

// Strategy returns the strategy tag for key, cache-first when none is set
func (m *Manager[V]) Strategy(key string) Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.strategies[key]; ok {
		return s
	}
	return StrategyCacheFirst
}

func (m *Manager[V]) sizeOf(key string, value V) int64 {
	m.mu.Lock()
	estimate := m.estimate
	m.mu.Unlock()

	size, err := estimate(value)
	if err != nil || size < 0 {
		m.logger.Debug("size estimate failed, using default",
			zap.String("key", key),
			zap.Int64("default_size", m.cfg.DefaultEntrySize),
			zap.Error(err),
		)
		m.metrics.CacheSizeFallback()
		return m.cfg.DefaultEntrySize
	}
	return size
}

// preservePriorityLocked must be called with mu held
func (m *Manager[V]) preservePriorityLocked(key string) {
	parts := strings.Split(key, ":")
	if len(parts) < 3 {
		return
	}
	priority := parts[len(parts)-1]
	if !nav.Priority(priority).Valid() {
		return
	}
	path := strings.Join(parts[1:len(parts)-1], ":")
	m.preserved[priorityKeyPrefix+path] = priority
}

// expireLocked must be called with mu held
func (m *Manager[V]) expireLocked(entry *Entry[V]) {
	m.removeLocked(entry)
	m.expirations++
	m.metrics.CacheExpired()
}

// removeLocked must be called with mu held
func (m *Manager[V]) removeLocked(entry *Entry[V]) {
	delete(m.entries, entry.Key)
	m.currentBytes -= entry.Size
	m.metrics.CacheBytes(m.currentBytes)
}
