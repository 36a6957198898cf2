// internal/cache/stats.go
package cache

// Stats is a point-in-time view of the cache
type Stats struct {
	Items        int   `json:"items"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Evictions    int64 `json:"evictions"`
	Expirations  int64 `json:"expirations"`
	CurrentBytes int64 `json:"current_bytes"`
	MaxBytes     int64 `json:"max_bytes"`
}

// HitRate calculates the cache hit rate
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// MemoryUsage returns current memory usage percentage
func (s Stats) MemoryUsage() float64 {
	if s.MaxBytes == 0 {
		return 0
	}
	return float64(s.CurrentBytes) / float64(s.MaxBytes) * 100
}

// Stats returns current cache statistics. Items counts stored entries,
// including any that have expired but not yet been touched.
func (m *Manager[V]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Items:        len(m.entries),
		Hits:         m.hits,
		Misses:       m.misses,
		Evictions:    m.evictions,
		Expirations:  m.expirations,
		CurrentBytes: m.currentBytes,
		MaxBytes:     m.cfg.MaxBytes,
	}
}
