// Package snapshot keeps the analytics totals in PostgreSQL so a restarted
// analytics service resumes its counters and can show how they moved.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/postgres"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id             BIGSERIAL PRIMARY KEY,
		total_searches BIGINT NOT NULL,
		index_builds   BIGINT NOT NULL,
		data           JSONB NOT NULL,
		captured_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_idx ON analytics_snapshots (captured_at DESC)`,
}

// Source is what Run snapshots; *analytics.Aggregator implements it.
type Source interface {
	Stats() analytics.AggregatedStats
}

type Store struct {
	db     *postgres.Client
	now    func() time.Time
	logger *slog.Logger

	// counters at the last successful save; Run skips idle intervals
	lastSearches int64
	lastBuilds   int64
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:           db,
		now:          time.Now,
		logger:       slog.Default().With("component", "analytics-snapshots"),
		lastSearches: -1,
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.db.Exec(ctx, Schema...); err != nil {
		return fmt.Errorf("creating analytics schema: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (total_searches, index_builds, data, captured_at)
		 VALUES ($1, $2, $3, $4)`,
		stats.TotalSearches, stats.IndexBuilds, data, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	s.lastSearches, s.lastBuilds = stats.TotalSearches, stats.IndexBuilds
	return nil
}

// Latest returns the newest snapshot, or nil when the table is empty.
func (s *Store) Latest(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decoding latest snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []analytics.AggregatedStats
	for rows.Next() {
		var id int64
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping undecodable snapshot", "id", id, "error", err)
			continue
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// Prune deletes snapshots older than retention and reports how many went.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM analytics_snapshots WHERE captured_at < $1`,
		s.now().Add(-retention).UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Run saves src every interval until ctx ends, then saves once more on a
// fresh five second budget. Intervals with no new searches or builds are
// skipped. A positive retention prunes older rows after each save.
func (s *Store) Run(ctx context.Context, src Source, interval, retention time.Duration) {
	s.logger.Info("snapshotting analytics", "interval", interval, "retention", retention)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick(ctx, src, retention)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := s.Save(final, src.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			cancel()
			return
		}
	}
}

func (s *Store) tick(ctx context.Context, src Source, retention time.Duration) {
	stats := src.Stats()
	if !s.changed(stats) {
		return
	}
	if err := s.Save(ctx, stats); err != nil {
		s.logger.Error("snapshot failed", "error", err)
		return
	}
	if retention <= 0 {
		return
	}
	if n, err := s.Prune(ctx, retention); err != nil {
		s.logger.Warn("snapshot pruning failed", "error", err)
	} else if n > 0 {
		s.logger.Debug("old snapshots pruned", "rows", n)
	}
}

func (s *Store) changed(stats analytics.AggregatedStats) bool {
	return stats.TotalSearches != s.lastSearches || stats.IndexBuilds != s.lastBuilds
}
