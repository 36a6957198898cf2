// internal/accelerator/accelerator.go
package accelerator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/navaccel/internal/cache"
	"github.com/FairForge/navaccel/internal/nav"
	"github.com/FairForge/navaccel/internal/predictor"
	"github.com/FairForge/navaccel/internal/prefetch"
	"github.com/FairForge/navaccel/internal/scheduler"
)

// ErrInvalidConfig is wrapped by construction errors
var ErrInvalidConfig = errors.New("accelerator: invalid configuration")

// Config tunes the orchestrator
type Config struct {
	RecentHistorySize int
	EvictTargetRatio  float64
}

// DefaultConfig returns the stock tuning
func DefaultConfig() Config {
	return Config{RecentHistorySize: 10, EvictTargetRatio: 0.8}
}

// ApplyDefaults fills in zero values
func (c *Config) ApplyDefaults() {
	if c.RecentHistorySize == 0 {
		c.RecentHistorySize = 10
	}
	if c.EvictTargetRatio == 0 {
		c.EvictTargetRatio = 0.8
	}
}

// Validate checks configuration
func (c Config) Validate() error {
	if c.RecentHistorySize < 1 {
		return fmt.Errorf("%w: recent history size must be at least 1", ErrInvalidConfig)
	}
	if c.EvictTargetRatio <= 0 || c.EvictTargetRatio > 1 {
		return fmt.Errorf("%w: evict target ratio must be in (0, 1]", ErrInvalidConfig)
	}
	return nil
}

// Snapshot is the accelerator's view of where the user is
type Snapshot struct {
	Route         string          `json:"route"`
	Role          nav.Role        `json:"role"`
	Since         time.Time       `json:"since"`
	RecentHistory []string        `json:"recent_history"`
	Params        prefetch.Params `json:"params,omitempty"`
}

// Accelerator feeds navigation events into the predictor and turns its
// predictions into route and data prefetches
type Accelerator struct {
	cache  *cache.Manager[any]
	routes *prefetch.RoutePrefetcher
	data   *prefetch.DataPrefetcher
	clock  scheduler.Clock
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	predictor *predictor.Predictor
	current   string
	role      nav.Role
	arrived   time.Time
	recent    []string
	params    prefetch.Params
}

// New wires an accelerator. clock and logger may be nil.
func New(p *predictor.Predictor, routes *prefetch.RoutePrefetcher, data *prefetch.DataPrefetcher, c *cache.Manager[any], clock scheduler.Clock, cfg Config, logger *zap.Logger) (*Accelerator, error) {
	if p == nil || routes == nil || data == nil || c == nil {
		return nil, fmt.Errorf("%w: predictor, prefetchers and cache are required", ErrInvalidConfig)
	}
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

	return &Accelerator{
		cache:     c,
		routes:    routes,
		data:      data,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("accelerator"),
		predictor: p,
		recent:    make([]string, 0, cfg.RecentHistorySize),
	}, nil
}

// Navigate records the move to route, then warms the likely next routes.
// Critical predictions also get their data prefetched with params.
func (a *Accelerator) Navigate(ctx context.Context, route string, role nav.Role, params prefetch.Params) []nav.PredictedRoute {
	a.mu.Lock()
	if a.current != "" && a.current != route {
		a.predictor.RecordNavigation(a.current, route, role)
	}
	a.current = route
	a.role = role
	a.arrived = a.clock.Now()
	a.params = params
	a.recent = append(a.recent, route)
	if over := len(a.recent) - a.cfg.RecentHistorySize; over > 0 {
		a.recent = append(a.recent[:0:0], a.recent[over:]...)
	}
	navCtx := a.contextLocked(0)
	p := a.predictor
	a.mu.Unlock()

	a.logger.Debug("navigated", zap.String("route", route), zap.String("role", string(role)))
	return a.warm(ctx, p, navCtx, params)
}

// Refresh re-predicts from the current route, counting the time spent on it
func (a *Accelerator) Refresh(ctx context.Context) []nav.PredictedRoute {
	a.mu.Lock()
	if a.current == "" {
		a.mu.Unlock()
		return []nav.PredictedRoute{}
	}
	navCtx := a.contextLocked(a.clock.Now().Sub(a.arrived))
	p := a.predictor
	params := a.params
	a.mu.Unlock()

	return a.warm(ctx, p, navCtx, params)
}

// Hover starts a debounced prefetch of route
func (a *Accelerator) Hover(route string) {
	a.routes.PrefetchOnHover(route, 0)
}

// CancelHover drops a pending hover prefetch
func (a *Accelerator) CancelHover(route string) bool {
	return a.routes.CancelHoverPrefetch(route)
}

// Focus prefetches route immediately
func (a *Accelerator) Focus(ctx context.Context, route string) {
	a.routes.PrefetchOnFocus(ctx, route)
}

// SwapGraph switches to a new route graph, keeping the navigation history
func (a *Accelerator) SwapGraph(g *predictor.Graph) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.predictor = a.predictor.WithGraph(g)
	a.logger.Info("route graph replaced", zap.Int("routes", len(g.Paths())))
}

// Predictor returns the active predictor
func (a *Accelerator) Predictor() *predictor.Predictor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.predictor
}

// Current returns where the user is
func (a *Accelerator) Current() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	recent := make([]string, len(a.recent))
	copy(recent, a.recent)
	return Snapshot{
		Route:         a.current,
		Role:          a.role,
		Since:         a.arrived,
		RecentHistory: recent,
		Params:        a.params,
	}
}

// EvictIfNeeded frees the cache down to the target ratio once it is over
// its ceiling and returns how many entries went
func (a *Accelerator) EvictIfNeeded() int {
	if !a.cache.ShouldEvict() {
		return 0
	}
	target := int64(float64(a.cache.Config().MaxBytes) * a.cfg.EvictTargetRatio)
	evicted := a.cache.EvictLRU(target)
	a.logger.Info("cache evicted",
		zap.Int("entries", evicted),
		zap.Int64("target_bytes", target),
		zap.Int64("size", a.cache.Size()),
	)
	return evicted
}

func (a *Accelerator) warm(ctx context.Context, p *predictor.Predictor, navCtx nav.Context, params prefetch.Params) []nav.PredictedRoute {
	preds := p.PredictNextRoutes(navCtx)

	a.routes.PrefetchBatch(ctx, preds)
	for _, pr := range preds {
		if pr.Priority == nav.PriorityCritical {
			a.data.PrefetchData(ctx, pr.Path, params)
		}
	}

	a.EvictIfNeeded()
	return preds
}

// contextLocked must be called with mu held
func (a *Accelerator) contextLocked(onPage time.Duration) nav.Context {
	recent := make([]string, len(a.recent))
	copy(recent, a.recent)
	return nav.Context{
		CurrentRoute:  a.current,
		UserRole:      a.role,
		RecentHistory: recent,
		TimeOnPage:    onPage,
	}
}
