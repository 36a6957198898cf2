// internal/prefetch/queue.go
package prefetch

import (
	"context"
	"time"

	"github.com/FairForge/navaccel/internal/nav"
)

// Kind is what a queue item warms
type Kind string

const (
	KindRoute Kind = "route"
	KindData  Kind = "data"
)

// Status is a queue item's place in its lifecycle
type Status string

const (
	StatusPending  Status = "pending"
	StatusLoading  Status = "loading"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Active reports whether the item still has work ahead of it
func (s Status) Active() bool {
	return s == StatusPending || s == StatusLoading
}

// QueueItem tracks one prefetch through pending, loading and either
// complete or failed. A failed attempt with retries left goes back to
// pending until its retry fires.
type QueueItem struct {
	ID        string       `json:"id"`
	Route     string       `json:"route"`
	Priority  nav.Priority `json:"priority"`
	Type      Kind         `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Retries   int          `json:"retries"`
	Status    Status       `json:"status"`
	LastError string       `json:"last_error,omitempty"`
}

// Loader fetches the code for a route
type Loader interface {
	Load(ctx context.Context, path string) error
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context, path string) error

// Load calls f
func (f LoaderFunc) Load(ctx context.Context, path string) error {
	return f(ctx, path)
}

// RouteMarkerKey is the cache key recording a warmed route
func RouteMarkerKey(path string) string {
	return "route:" + path
}
