// internal/prefetch/errors.go
package prefetch

import (
	"errors"
	"fmt"
)

// Skip reasons. None of these reach callers of the public API; they are
// logged and counted.
var (
	ErrAlreadyPrefetched = errors.New("prefetch: already prefetched")
	ErrInFlight          = errors.New("prefetch: already queued")
	ErrMemoryPressure    = errors.New("prefetch: cache at memory ceiling")
	ErrRateLimited       = errors.New("prefetch: issuance rate exceeded")
	ErrClosed            = errors.New("prefetch: prefetcher closed")
	ErrNoFetchers        = errors.New("prefetch: no fetchers registered")
	ErrDataReady         = errors.New("prefetch: data already cached")
	ErrNoData            = errors.New("prefetch: every fetcher failed")
)

// ErrInvalidConfig is wrapped by construction errors
var ErrInvalidConfig = errors.New("prefetch: invalid configuration")

// LoadError is a failed route load attempt
type LoadError struct {
	Route   string
	Attempt int
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s (attempt %d): %v", e.Route, e.Attempt, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// FetchError is a failed data fetcher
type FetchError struct {
	Route string
	Key   string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Key, e.Route, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// skipReason maps a skip error to its metric label
func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyPrefetched):
		return "prefetched"
	case errors.Is(err, ErrInFlight):
		return "in_flight"
	case errors.Is(err, ErrMemoryPressure):
		return "memory_pressure"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrNoFetchers):
		return "no_fetchers"
	case errors.Is(err, ErrDataReady):
		return "ready"
	default:
		return "other"
	}
}
