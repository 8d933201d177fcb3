package apikey

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/postgres"
)

func TestHashKey(t *testing.T) {
	h := HashKey("psk_abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashKey("psk_abc"))
	assert.NotEqual(t, h, HashKey("psk_abd"))
}

func TestNewRawKey(t *testing.T) {
	a, err := NewRawKey()
	require.NoError(t, err)
	b, err := NewRawKey()
	require.NoError(t, err)
	assert.True(t, len(a) == len("psk_")+64)
	assert.Equal(t, "psk_", a[:4])
	assert.NotEqual(t, a, b)
}

func TestKeyInfo_Expired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)

	assert.False(t, KeyInfo{}.Expired(now))
	assert.True(t, KeyInfo{ExpiresAt: &past}.Expired(now))
	assert.True(t, KeyInfo{ExpiresAt: &now}.Expired(now))
	assert.False(t, KeyInfo{ExpiresAt: &future}.Expired(now))
}

type fakeValidator map[string]error

func (f fakeValidator) Validate(_ context.Context, raw string) (*KeyInfo, error) {
	err, ok := f[raw]
	if !ok {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, err
	}
	return &KeyInfo{ID: "7", Name: "loader", RateLimit: 30, IsActive: true}, nil
}

func TestRequire(t *testing.T) {
	validator := fakeValidator{
		"good":    nil,
		"old":     ErrExpiredKey,
		"db-down": errors.New("connection refused"),
	}
	var seen *KeyInfo
	h := Require(validator, http.MethodPost)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	tests := []struct {
		name   string
		method string
		path   string
		header string
		value  string
		want   int
	}{
		{"reads are public", http.MethodGet, "/api/v1/papers", "", "", http.StatusAccepted},
		{"health is public", http.MethodPost, "/health/ready", "", "", http.StatusAccepted},
		{"missing key", http.MethodPost, "/api/v1/papers", "", "", http.StatusUnauthorized},
		{"unknown key", http.MethodPost, "/api/v1/papers", "X-API-Key", "nope", http.StatusUnauthorized},
		{"expired key", http.MethodPost, "/api/v1/papers", "X-API-Key", "old", http.StatusUnauthorized},
		{"store failure", http.MethodPost, "/api/v1/papers", "X-API-Key", "db-down", http.StatusServiceUnavailable},
		{"bearer key", http.MethodPost, "/api/v1/papers", "Authorization", "Bearer good", http.StatusAccepted},
		{"header key", http.MethodPost, "/api/v1/papers", "X-API-Key", "good", http.StatusAccepted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/papers", nil)
	req.Header.Set("X-API-Key", "good")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	assert.Equal(t, "loader", seen.Name)
}

func TestRequire_AllMethodsWhenNoneListed(t *testing.T) {
	h := Require(fakeValidator{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/papers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateKey(t *testing.T) {
	keyFn := RateKey(60, middleware.ByClientIP(5))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/papers", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	key, limit := keyFn(req)
	assert.Equal(t, "192.0.2.1", key)
	assert.Equal(t, 5, limit)

	req = req.WithContext(WithKeyInfo(req.Context(), &KeyInfo{ID: "3", RateLimit: 10}))
	key, limit = keyFn(req)
	assert.Equal(t, "key:3", key)
	assert.Equal(t, 10, limit)

	req = req.WithContext(WithKeyInfo(req.Context(), &KeyInfo{ID: "4"}))
	_, limit = keyFn(req)
	assert.Equal(t, 60, limit)
}

func TestValidator_Lifecycle(t *testing.T) {
	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("skipping: TEST_POSTGRES_HOST not set")
	}
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	db, err := postgres.New(t.Context(), config.PostgresConfig{
		Host:            host,
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "papersearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "papersearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	v := NewValidator(db)
	ctx := t.Context()
	require.NoError(t, v.EnsureSchema(ctx))

	raw, err := v.CreateKey(ctx, "lifecycle-test", 12, nil)
	require.NoError(t, err)

	info, err := v.Validate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "lifecycle-test", info.Name)
	assert.Equal(t, 12, info.RateLimit)

	keys, err := v.ListKeys(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, keys)

	require.NoError(t, v.RevokeKey(ctx, raw))
	_, err = v.Validate(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, v.RevokeKey(ctx, raw), ErrInvalidKey)

	past := time.Now().Add(-time.Hour)
	stale, err := v.CreateKey(ctx, "expired-test", 12, &past)
	require.NoError(t, err)
	_, err = v.Validate(ctx, stale)
	assert.ErrorIs(t, err, ErrExpiredKey)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
