package apikey

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/middleware"
)

type contextKey string

const keyInfoKey contextKey = "api_key_info"

// KeyValidator is the part of Validator the middleware needs.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*KeyInfo, error)
}

// Require rejects requests with the listed methods unless they carry a
// valid key. Other methods pass untouched, so reads stay public while
// writes need a key. With no methods listed every request is checked.
// Health probes are never checked.
func Require(validator KeyValidator, methods ...string) func(http.Handler) http.Handler {
	guarded := make(map[string]bool, len(methods))
	for _, m := range methods {
		guarded[strings.ToUpper(m)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || (len(guarded) > 0 && !guarded[r.Method]) {
				next.ServeHTTP(w, r)
				return
			}

			key := ExtractKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			info, err := validator.Validate(r.Context(), key)
			switch {
			case err == nil:
			case errors.Is(err, ErrInvalidKey):
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			case errors.Is(err, ErrExpiredKey):
				writeError(w, http.StatusUnauthorized, "expired api key")
				return
			default:
				slog.Error("api key validation failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithKeyInfo(r.Context(), info)))
		})
	}
}

// RateKey buckets requests that carry a key by key id at the key's own
// limit, or defaultLimit when the key has none. Anonymous requests go to
// fallback.
func RateKey(defaultLimit int, fallback middleware.KeyFunc) middleware.KeyFunc {
	return func(r *http.Request) (string, int) {
		info := FromContext(r.Context())
		if info == nil {
			return fallback(r)
		}
		limit := info.RateLimit
		if limit <= 0 {
			limit = defaultLimit
		}
		return "key:" + info.ID, limit
	}
}

func WithKeyInfo(ctx context.Context, info *KeyInfo) context.Context {
	return context.WithValue(ctx, keyInfoKey, info)
}

// FromContext returns the key Require attached, or nil.
func FromContext(ctx context.Context) *KeyInfo {
	info, _ := ctx.Value(keyInfoKey).(*KeyInfo)
	return info
}

// ExtractKey reads the key from Authorization: Bearer, then X-API-Key.
func ExtractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
