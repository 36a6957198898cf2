package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// Middleware is a function that wraps an HTTP handler
type Middleware func(http.Handler) http.Handler

// RateLimitMiddleware rejects clients that exceed their bucket. Clients are
// identified by X-Session-ID, falling back to the remote host.
func RateLimitMiddleware(limiter *RateLimiter, m *Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientID(r)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%g", limiter.requestsPerSecond))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(time.Second).Unix()))

			if !limiter.Allow(client) {
				if m != nil {
					m.IncrementRateLimitHit()
				}
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientID(r *http.Request) string {
	if id := r.Header.Get("X-Session-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CompressMiddleware gzips responses for clients that accept it.
// Bodies under gzhttp's default minimum size are sent uncompressed.
func CompressMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
