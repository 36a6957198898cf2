package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/navaccel/internal/cache"
	"github.com/FairForge/navaccel/internal/nav"
	"github.com/FairForge/navaccel/internal/prefetch"
)

type navigateRequest struct {
	Route  string          `json:"route"`
	Role   string          `json:"role"`
	Params prefetch.Params `json:"params,omitempty"`
}

type routeRequest struct {
	Route   string `json:"route"`
	DelayMS int    `json:"delay_ms,omitempty"`
}

type invalidateRequest struct {
	Route  string          `json:"route"`
	Params prefetch.Params `json:"params,omitempty"`
	All    bool            `json:"all,omitempty"`
}

type predictionsResponse struct {
	Predictions []nav.PredictedRoute `json:"predictions"`
}

type cacheStatsResponse struct {
	cache.Stats
	HitRate     float64 `json:"hit_rate"`
	MemoryUsage float64 `json:"memory_usage_percent"`
	ShouldEvict bool    `json:"should_evict"`
}

// handleNavigate handles POST /navigate
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Route == "" {
		writeError(w, http.StatusBadRequest, "route is required")
		return
	}
	role, err := nav.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	preds := s.deps.Accelerator.Navigate(r.Context(), req.Route, role, req.Params)
	writeJSON(w, http.StatusOK, predictionsResponse{Predictions: preds})
}

// handleRefresh handles POST /refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	preds := s.deps.Accelerator.Refresh(r.Context())
	writeJSON(w, http.StatusOK, predictionsResponse{Predictions: preds})
}

// handleHover handles POST /hover
func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRoute(w, r)
	if !ok {
		return
	}
	if req.DelayMS > 0 {
		s.deps.Routes.PrefetchOnHover(req.Route, time.Duration(req.DelayMS)*time.Millisecond)
	} else {
		s.deps.Accelerator.Hover(req.Route)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"route": req.Route, "status": "scheduled"})
}

// handleCancelHover handles DELETE /hover?route=
func (s *Server) handleCancelHover(w http.ResponseWriter, r *http.Request) {
	route := r.URL.Query().Get("route")
	if route == "" {
		writeError(w, http.StatusBadRequest, "route is required")
		return
	}
	cancelled := s.deps.Accelerator.CancelHover(route)
	writeJSON(w, http.StatusOK, map[string]interface{}{"route": route, "cancelled": cancelled})
}

// handleFocus handles POST /focus
func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRoute(w, r)
	if !ok {
		return
	}
	s.deps.Accelerator.Focus(r.Context(), req.Route)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"route":      req.Route,
		"prefetched": s.deps.Routes.IsPrefetched(req.Route),
	})
}

// handleSession handles GET /session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Accelerator.Current())
}

// handleQueue handles GET /queue
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": s.deps.Routes.QueueStatus()})
}

// handlePrefetched handles GET /prefetched?route=
func (s *Server) handlePrefetched(w http.ResponseWriter, r *http.Request) {
	route := r.URL.Query().Get("route")
	if route == "" {
		writeError(w, http.StatusBadRequest, "route is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"route":      route,
		"prefetched": s.deps.Routes.IsPrefetched(route),
	})
}

// handleData handles GET /data?route=&k=v. Every query value other than
// route is a data param.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	route := query.Get("route")
	if route == "" {
		writeError(w, http.StatusBadRequest, "route is required")
		return
	}

	var params prefetch.Params
	for k, v := range query {
		if k == "route" || len(v) == 0 {
			continue
		}
		if params == nil {
			params = prefetch.Params{}
		}
		params[k] = v[0]
	}

	data, ok := s.deps.Data.Data(route, params)
	if !ok {
		writeError(w, http.StatusNotFound, "no cached data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":  prefetch.DataCacheKey(route, params),
		"data": data,
	})
}

// handleInvalidate handles POST /data/invalidate
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Route == "" {
		writeError(w, http.StatusBadRequest, "route is required")
		return
	}

	removed := 0
	switch {
	case req.All:
		removed = s.deps.Data.InvalidateAll(req.Route)
	case s.deps.Data.IsDataReady(req.Route, req.Params):
		s.deps.Data.Invalidate(req.Route, req.Params)
		removed = 1
	}
	s.logger.Info("data invalidated", zap.String("route", req.Route), zap.Bool("all", req.All))
	writeJSON(w, http.StatusOK, map[string]interface{}{"route": req.Route, "removed": removed})
}

// handleCacheStats handles GET /cache/stats
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Cache.Stats()
	writeJSON(w, http.StatusOK, cacheStatsResponse{
		Stats:       stats,
		HitRate:     stats.HitRate(),
		MemoryUsage: stats.MemoryUsage(),
		ShouldEvict: s.deps.Cache.ShouldEvict(),
	})
}

// handleEvict handles POST /cache/evict
func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	evicted := s.deps.Accelerator.EvictIfNeeded()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"evicted": evicted,
		"size":    s.deps.Cache.Size(),
	})
}

func decodeRoute(w http.ResponseWriter, r *http.Request) (routeRequest, bool) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Route == "" {
		writeError(w, http.StatusBadRequest, "route is required")
		return req, false
	}
	return req, true
}
