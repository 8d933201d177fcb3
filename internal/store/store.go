// Package store keeps the paper corpus in PostgreSQL. It is the source of
// truth the indexer builds from; row id order is corpus order.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/postgres"
)

// Schema creates the papers table. Re-running it is harmless.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS papers (
		id         BIGSERIAL PRIMARY KEY,
		title      TEXT NOT NULL,
		authors    TEXT[] NOT NULL DEFAULT '{}',
		year       INTEGER NOT NULL,
		venue      TEXT NOT NULL,
		url        TEXT NOT NULL UNIQUE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS papers_venue_year_idx ON papers (venue, year)`,
}

const upsertSQL = `INSERT INTO papers (title, authors, year, venue, url)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (url) DO UPDATE SET
		title = EXCLUDED.title,
		authors = EXCLUDED.authors,
		year = EXCLUDED.year,
		venue = EXCLUDED.venue,
		updated_at = NOW()`

type RecordStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *RecordStore {
	return &RecordStore{
		db:     db,
		logger: slog.Default().With("component", "record-store"),
	}
}

func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.Exec(ctx, Schema...); err != nil {
		return fmt.Errorf("creating papers schema: %w", err)
	}
	return nil
}

// Upsert writes records in one transaction keyed by URL. A record whose URL
// already exists keeps its id, and so its corpus position.
func (s *RecordStore) Upsert(ctx context.Context, records []record.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for i, r := range records {
			if _, err := stmt.ExecContext(ctx,
				r.Title(), pq.Array(r.Authors()), r.Year(), r.Venue(), r.URL(),
			); err != nil {
				return fmt.Errorf("upserting record %d (%s): %w", i, r.URL(), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("records upserted", "count", len(records))
	return len(records), nil
}

// LoadAll returns every paper ordered by id.
func (s *RecordStore) LoadAll(ctx context.Context) ([]record.Record, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT title, authors, year, venue, url FROM papers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var (
			f       record.Fields
			authors pq.StringArray
		)
		if err := rows.Scan(&f.Title, &authors, &f.Year, &f.Venue, &f.URL); err != nil {
			return nil, fmt.Errorf("scanning paper row: %w", err)
		}
		f.Authors = authors
		out = append(out, record.FromFields(f))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating papers: %w", err)
	}
	return out, nil
}

func (s *RecordStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting papers: %w", err)
	}
	return n, nil
}
