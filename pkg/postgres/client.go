// Package postgres holds the lib/pq connection pool shared by the record
// store, the api key table and the analytics snapshots.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/resilience"
)

type Client struct {
	DB *sql.DB
}

// New opens a pool and pings it once within ctx, at most five seconds.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		err = fmt.Errorf("pinging postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
		if isFatal(err) {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}
	return &Client{DB: db}, nil
}

// Connect retries New while the database starts up. Bad credentials or a
// missing database fail on the first attempt.
func Connect(ctx context.Context, cfg config.PostgresConfig, attempts int) (*Client, error) {
	var c *Client
	err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: 500 * time.Millisecond,
	}, func() error {
		var err error
		c, err = New(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("connected to postgres", "host", cfg.Host, "database", cfg.Database)
	return c, nil
}

// isFatal matches server errors no retry can fix: classes 28 (invalid
// authorization) and 3D (invalid catalog name).
func isFatal(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	class := pqErr.Code.Class()
	return class == "28" || class == "3D"
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Exec runs statements in order and stops at the first failure.
func (c *Client) Exec(ctx context.Context, statements ...string) error {
	for i, stmt := range statements {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d of %d: %w", i+1, len(statements), err)
		}
	}
	return nil
}

// InTx commits when fn returns nil and rolls back otherwise. fn's error is
// returned; a failed rollback is joined to it.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
