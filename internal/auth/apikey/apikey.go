// Package apikey issues and validates the write keys that guard corpus
// ingestion. Raw keys come from crypto/rand and are shown once; only their
// SHA-256 digest is stored in PostgreSQL.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// Schema creates the api_keys table. Re-running it is harmless.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           BIGSERIAL PRIMARY KEY,
		key_hash     TEXT NOT NULL UNIQUE,
		name         TEXT NOT NULL,
		rate_limit   INTEGER NOT NULL DEFAULT 60,
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at   TIMESTAMPTZ,
		last_used_at TIMESTAMPTZ
	)`,
}

// KeyInfo describes a key without its secret. RateLimit is ingest
// requests per minute.
type KeyInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	RateLimit  int        `json:"rate_limit"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Expired reports whether the key's expiry is at or before now.
func (k KeyInfo) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

type Validator struct {
	db     *postgres.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
		now:    time.Now,
	}
}

func (v *Validator) EnsureSchema(ctx context.Context) error {
	if err := v.db.Exec(ctx, Schema...); err != nil {
		return fmt.Errorf("creating api_keys schema: %w", err)
	}
	return nil
}

// Validate resolves an active key. It returns ErrInvalidKey for unknown or
// revoked keys and ErrExpiredKey once the expiry has passed.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}
	var info KeyInfo
	var expiresAt, lastUsed sql.NullTime
	err := v.db.DB.QueryRowContext(ctx,
		`SELECT id, name, rate_limit, is_active, created_at, expires_at, last_used_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	).Scan(&info.ID, &info.Name, &info.RateLimit, &info.IsActive, &info.CreatedAt, &expiresAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	info.ExpiresAt = nullTime(expiresAt)
	info.LastUsedAt = nullTime(lastUsed)
	if info.Expired(v.now()) {
		return nil, ErrExpiredKey
	}

	if _, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, info.ID); err != nil {
		v.logger.Warn("recording key use failed", "key_id", info.ID, "error", err)
	}
	return &info, nil
}

// CreateKey stores a new key and returns the raw secret, which cannot be
// recovered later.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, error) {
	if name == "" {
		return "", errors.New("key name is required")
	}
	rawKey, err := NewRawKey()
	if err != nil {
		return "", err
	}
	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	_, err = v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, rate_limit, expires_at) VALUES ($1, $2, $3, $4)`,
		HashKey(rawKey), name, rateLimit, expiry,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	v.logger.Info("api key created", "name", name, "rate_limit", rateLimit)
	return rawKey, nil
}

// RevokeKey deactivates a key by its raw secret or by its numeric id.
func (v *Validator) RevokeKey(ctx context.Context, keyOrID string) error {
	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false
		 WHERE is_active = true AND (key_hash = $1 OR id::text = $2)`,
		HashKey(keyOrID), keyOrID,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrInvalidKey
	}
	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns active keys, newest first.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT id, name, rate_limit, is_active, created_at, expires_at, last_used_at
		 FROM api_keys WHERE is_active = true ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var k KeyInfo
		var expiresAt, lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &k.RateLimit, &k.IsActive, &k.CreatedAt, &expiresAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		k.ExpiresAt = nullTime(expiresAt)
		k.LastUsedAt = nullTime(lastUsed)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the hex SHA-256 of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewRawKey returns 32 random bytes, hex encoded and prefixed so leaked
// keys are recognizable.
func NewRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return "psk_" + hex.EncodeToString(b), nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
