package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FairForge/navaccel/internal/accelerator"
	"github.com/FairForge/navaccel/internal/cache"
	"github.com/FairForge/navaccel/internal/prefetch"
)

const version = "0.1.0"

// Deps are the components the API drives
type Deps struct {
	Accelerator *accelerator.Accelerator
	Cache       *cache.Manager[any]
	Routes      *prefetch.RoutePrefetcher
	Data        *prefetch.DataPrefetcher

	// Registry receives the HTTP series and is served on /metrics
	Registry *prometheus.Registry
}

type Server struct {
	deps       Deps
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
	metrics    *Metrics
	limiter    *RateLimiter

	requestCount int64
	errorCount   int64
	startTime    time.Time
}

// NewServer builds the router and the http.Server listening on addr
func NewServer(addr string, deps Deps, limiter *RateLimiter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		deps:      deps,
		logger:    logger.Named("api"),
		router:    chi.NewRouter(),
		metrics:   NewMetrics(deps.Registry),
		limiter:   limiter,
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Get("/version", s.handleVersion)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))

	s.router.Group(func(r chi.Router) {
		r.Use(CompressMiddleware)
		if s.limiter != nil {
			r.Use(RateLimitMiddleware(s.limiter, s.metrics))
		}

		// Navigation events
		r.Post("/navigate", s.handleNavigate)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/hover", s.handleHover)
		r.Delete("/hover", s.handleCancelHover)
		r.Post("/focus", s.handleFocus)
		r.Get("/session", s.handleSession)

		// Prefetch state
		r.Get("/queue", s.handleQueue)
		r.Get("/prefetched", s.handlePrefetched)
		r.Get("/data", s.handleData)
		r.Post("/data/invalidate", s.handleInvalidate)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", s.handleCacheStats)
			r.Post("/evict", s.handleEvict)
		})
	})
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": version,
		"uptime":  time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready":       true,
		"memory_mb":   getMemoryUsageMB(),
		"cache_bytes": s.deps.Cache.Size(),
		"requests":    atomic.LoadInt64(&s.requestCount),
		"errors":      atomic.LoadInt64(&s.errorCount),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": version,
		"go":      runtime.Version(),
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.requestCount, 1)
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		if rec.status >= 500 {
			atomic.AddInt64(&s.errorCount, 1)
		}
		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		s.metrics.IncrementRequest(r.Method, pattern, rec.status)
		s.metrics.RecordLatency(r.Method, pattern, time.Since(start).Seconds())

		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func getMemoryUsageMB() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc / 1024 / 1024
}
