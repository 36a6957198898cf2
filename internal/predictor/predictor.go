// internal/predictor/predictor.go
package predictor

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/navaccel/internal/metrics"
	"github.com/FairForge/navaccel/internal/nav"
	"github.com/FairForge/navaccel/internal/scheduler"
)

// Confidence weights
const (
	baseConfidence       = 0.5
	directChildBonus     = 0.3
	transitionBonusStep  = 0.05
	transitionBonusLimit = 0.2
	dwellBonus           = 0.1
	revisitBonus         = 0.15

	// transitions above this count make a non-child route high priority
	frequentTransitions = 3
)

// NetworkProbe reports the current downlink in Mbps. ok is false when no
// measurement is available, which is treated as a fast network.
type NetworkProbe interface {
	Downlink() (mbps float64, ok bool)
}

// ProbeFunc adapts a function to NetworkProbe
type ProbeFunc func() (float64, bool)

// Downlink calls f
func (f ProbeFunc) Downlink() (float64, bool) {
	return f()
}

// Transition is one recorded navigation
type Transition struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Role nav.Role  `json:"role"`
	At   time.Time `json:"at"`
}

// Predictor scores the routes a user is likely to open next from the
// route graph and the recent transition history
type Predictor struct {
	graph   *Graph
	cfg     Config
	probe   NetworkProbe
	clock   scheduler.Clock
	logger  *zap.Logger
	metrics *metrics.Collector

	mu      sync.RWMutex
	history []Transition
}

// New creates a predictor. probe, clock, logger and m may be nil.
func New(graph *Graph, cfg Config, probe NetworkProbe, clock scheduler.Clock, logger *zap.Logger, m *metrics.Collector) (*Predictor, error) {
	if graph == nil {
		return nil, errors.New("predictor: graph is required")
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

	return &Predictor{
		graph:   graph,
		cfg:     cfg,
		probe:   probe,
		clock:   clock,
		logger:  logger.Named("predictor"),
		metrics: m,
		history: make([]Transition, 0, cfg.HistorySize),
	}, nil
}

// Graph returns the route graph
func (p *Predictor) Graph() *Graph {
	return p.graph
}

// WithGraph returns a predictor over graph that starts from a copy of this
// predictor's history
func (p *Predictor) WithGraph(graph *Graph) *Predictor {
	next := &Predictor{
		graph:   graph,
		cfg:     p.cfg,
		probe:   p.probe,
		clock:   p.clock,
		logger:  p.logger,
		metrics: p.metrics,
	}
	next.history = p.History()
	return next
}

// RecordNavigation appends a transition, dropping the oldest once the
// history is full
func (p *Predictor) RecordNavigation(from, to string, role nav.Role) {
	if from == "" || to == "" {
		p.logger.Debug("ignoring incomplete transition", zap.String("from", from), zap.String("to", to))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.history = append(p.history, Transition{From: from, To: to, Role: role, At: p.clock.Now()})

	// Keep only the last HistorySize transitions
	if over := len(p.history) - p.cfg.HistorySize; over > 0 {
		kept := make([]Transition, p.cfg.HistorySize)
		copy(kept, p.history[over:])
		p.history = kept
	}
}

// History returns the recorded transitions, oldest first
func (p *Predictor) History() []Transition {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Transition, len(p.history))
	copy(out, p.history)
	return out
}

// TransitionCount returns how often from -> to appears in the history
func (p *Predictor) TransitionCount(from, to string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.countLocked(from, to)
}

// PredictNextRoutes returns the role-permitted children of the current
// route, most likely first. Ties keep the graph's declared order. The list
// is cut to MaxPredictions, or to one entry on a slow network.
func (p *Predictor) PredictNextRoutes(ctx nav.Context) []nav.PredictedRoute {
	children := p.graph.Children(ctx.CurrentRoute)
	if len(children) == 0 {
		return []nav.PredictedRoute{}
	}

	p.mu.RLock()
	predictions := make([]nav.PredictedRoute, 0, len(children))
	for _, child := range children {
		if !p.graph.Allows(child, ctx.UserRole) {
			continue
		}
		count := p.countLocked(ctx.CurrentRoute, child)
		predictions = append(predictions, nav.PredictedRoute{
			Path:       child,
			Priority:   p.priority(child, ctx, count),
			Confidence: p.confidence(child, ctx, count),
		})
	}
	p.mu.RUnlock()

	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].Confidence > predictions[j].Confidence
	})

	limit := p.cfg.MaxPredictions
	if p.slowNetwork() {
		limit = 1
	}
	if len(predictions) > limit {
		predictions = predictions[:limit]
	}

	for _, pr := range predictions {
		p.metrics.Prediction(string(pr.Priority))
	}
	p.logger.Debug("predicted routes",
		zap.String("current", ctx.CurrentRoute),
		zap.String("role", string(ctx.UserRole)),
		zap.Int("count", len(predictions)),
	)
	return predictions
}

// Priority applies the priority rule to any route, child or not
func (p *Predictor) Priority(route string, ctx nav.Context) nav.Priority {
	p.mu.RLock()
	count := p.countLocked(ctx.CurrentRoute, route)
	p.mu.RUnlock()
	return p.priority(route, ctx, count)
}

// Confidence applies the confidence rule to any route, child or not
func (p *Predictor) Confidence(route string, ctx nav.Context) float64 {
	p.mu.RLock()
	count := p.countLocked(ctx.CurrentRoute, route)
	p.mu.RUnlock()
	return p.confidence(route, ctx, count)
}

func (p *Predictor) priority(route string, ctx nav.Context, count int) nav.Priority {
	switch {
	case p.graph.IsChild(ctx.CurrentRoute, route):
		return nav.PriorityCritical
	case count > frequentTransitions:
		return nav.PriorityHigh
	case p.graph.Allows(route, ctx.UserRole):
		return nav.PriorityMedium
	default:
		return nav.PriorityLow
	}
}

func (p *Predictor) confidence(route string, ctx nav.Context, count int) float64 {
	c := baseConfidence
	if p.graph.IsChild(ctx.CurrentRoute, route) {
		c += directChildBonus
	}
	c += math.Min(transitionBonusStep*float64(count), transitionBonusLimit)
	if ctx.TimeOnPage > p.cfg.DwellThreshold {
		c += dwellBonus
	}
	if ctx.Visited(route) {
		c += revisitBonus
	}
	return math.Max(0, math.Min(1, c))
}

func (p *Predictor) slowNetwork() bool {
	if p.probe == nil || p.cfg.SlowNetworkMbps < 0 {
		return false
	}
	mbps, ok := p.probe.Downlink()
	return ok && mbps < p.cfg.SlowNetworkMbps
}

// countLocked must be called with mu held
func (p *Predictor) countLocked(from, to string) int {
	n := 0
	for _, t := range p.history {
		if t.From == from && t.To == to {
			n++
		}
	}
	return n
}
