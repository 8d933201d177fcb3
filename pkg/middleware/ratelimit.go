package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/ratelimit"
)

// KeyFunc names the bucket a request draws from and that bucket's limit
// per window. An empty key or a non-positive limit skips limiting.
type KeyFunc func(r *http.Request) (key string, limit int)

// RateLimit rejects requests with 429 once their bucket is empty. Health
// probes and metrics scrapes are never limited.
func RateLimit(limiter *ratelimit.Limiter, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			key, limit := keyFn(r)
			if key == "" || limiter.Allow(key, limit) {
				next.ServeHTTP(w, r)
				return
			}
			wait := int(math.Ceil(limiter.RetryAfter(limit).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(wait, 1)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
		})
	}
}

// ByClientIP gives every client address the same limit.
func ByClientIP(limit int) KeyFunc {
	return func(r *http.Request) (string, int) {
		return ClientIP(r), limit
	}
}

// ClientIP prefers the first X-Forwarded-For hop, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
