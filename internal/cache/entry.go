// internal/cache/entry.go
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Strategy is a descriptive fetch-strategy tag. The cache stores it for
// collaborators and never enforces it.
type Strategy string

const (
	StrategyCacheFirst   Strategy = "cache-first"
	StrategyNetworkFirst Strategy = "network-first"
	StrategyCacheOnly    Strategy = "cache-only"
	StrategyNetworkOnly  Strategy = "network-only"
)

// Valid reports whether s is a known strategy
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCacheFirst, StrategyNetworkFirst, StrategyCacheOnly, StrategyNetworkOnly:
		return true
	default:
		return false
	}
}

// ErrSerialization is returned by a size estimator that cannot serialize a value
var ErrSerialization = errors.New("cache: value cannot be serialized for size estimate")

// Entry is a cached value plus its bookkeeping
type Entry[V any] struct {
	Key          string
	Value        V
	Timestamp    time.Time
	TTL          time.Duration
	Size         int64
	AccessCount  int64
	LastAccessed time.Time
	Strategy     Strategy

	// insertion order, used to break LastAccessed ties during eviction
	seq uint64
}

// ExpiresAt returns the instant the entry stops being served
func (e *Entry[V]) ExpiresAt() time.Time {
	return e.Timestamp.Add(e.TTL)
}

// Expired reports whether the entry is past its TTL at now
func (e *Entry[V]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// SizeEstimator returns an approximate byte size for a value
type SizeEstimator[V any] func(V) (int64, error)

// JSONSize estimates a value as the byte length of its JSON encoding
func JSONSize[V any](v V) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return int64(len(data)), nil
}
