package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Checker is satisfied by DistributedCounter; tests substitute fakes.
type Checker interface {
	CheckProfile(ctx context.Context, profile Profile, key string) Result
}

// Middleware enforces a named profile on a route group, keyed by client IP.
// Rate limit headers are set on every response, throttled or not.
func Middleware(counter Checker, profile Profile) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := counter.CheckProfile(r.Context(), profile, clientIP(r))

			if !result.Allowed {
				BuildThrottledResponse(result).WriteHTTP(w)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.Reset))
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the caller address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
