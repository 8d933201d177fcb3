// Package consumer reacts to pipeline events on Kafka. Indexers rebuild the
// snapshot when the corpus changes; searchers reload it when a new snapshot
// is announced.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/kafka"
)

// CorpusSource yields the full corpus in stable order.
type CorpusSource interface {
	LoadAll(ctx context.Context) ([]record.Record, error)
}

// Rebuilder fits a fresh index over the corpus, saves the snapshot and
// announces it.
type Rebuilder struct {
	engine *indexer.Engine
	source CorpusSource
	events kafka.Publisher

	mu        sync.Mutex
	lastStart time.Time
	logger    *slog.Logger
}

// NewRebuilder wires a Rebuilder. events may be nil.
func NewRebuilder(engine *indexer.Engine, source CorpusSource, events kafka.Publisher) *Rebuilder {
	return &Rebuilder{
		engine: engine,
		source: source,
		events: events,
		logger: slog.Default().With("component", "index-rebuilder"),
	}
}

// Rebuild runs one build. Concurrent calls are serialized.
func (rb *Rebuilder) Rebuild(ctx context.Context) (*analytics.IndexEvent, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.lastStart = time.Now()
	return rb.rebuild(ctx)
}

func (rb *Rebuilder) rebuild(ctx context.Context) (*analytics.IndexEvent, error) {
	start := time.Now()
	records, err := rb.source.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	if err := rb.engine.Build(ctx, records); err != nil {
		return nil, err
	}
	path, err := rb.engine.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}
	stats := rb.engine.Stats()
	event := &analytics.IndexEvent{
		Type:        analytics.EventIndexBuilt,
		Fingerprint: stats.Fingerprint,
		Path:        path,
		Documents:   stats.Documents,
		Vocabulary:  stats.Vocabulary,
		DurationMs:  time.Since(start).Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
	if rb.events != nil {
		if err := rb.events.Publish(ctx, kafka.Event{Key: event.Fingerprint, Value: *event}); err != nil {
			rb.logger.Error("failed to announce snapshot, searchers will not reload",
				"fingerprint", event.Fingerprint,
				"error", err,
			)
		}
	}
	return event, nil
}

// HandleCorpusUpdate returns a Kafka handler that rebuilds on every
// corpus_updated event. Events older than the start of the last rebuild
// are already covered by it and skipped.
func HandleCorpusUpdate(rb *Rebuilder) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		if t := kafka.EventType(value); t != ingestion.EventCorpusUpdated {
			rb.logger.Debug("ignoring event", "type", t)
			return nil
		}
		event, err := kafka.DecodeJSON[ingestion.CorpusEvent](value)
		if err != nil {
			rb.logger.Error("failed to decode corpus event", "error", err, "key", string(key))
			return nil
		}

		rb.mu.Lock()
		defer rb.mu.Unlock()
		if !event.IngestedAt.IsZero() && event.IngestedAt.Before(rb.lastStart) {
			rb.logger.Debug("corpus event already covered", "ingested_at", event.IngestedAt)
			return nil
		}
		rb.lastStart = time.Now()
		built, err := rb.rebuild(ctx)
		if err != nil {
			return fmt.Errorf("rebuilding after corpus update: %w", err)
		}
		rb.logger.Info("index rebuilt after corpus update",
			"accepted", event.Accepted,
			"documents", built.Documents,
			"fingerprint", built.Fingerprint,
		)
		return nil
	}
}

// Invalidator drops cached results. *cache.QueryCache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// HandleIndexBuilt returns a Kafka handler that reloads engine from its
// snapshot file when a snapshot with a different fingerprint is announced,
// then invalidates cache (which may be nil).
func HandleIndexBuilt(engine *indexer.Engine, cache Invalidator) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-reloader")
	return func(ctx context.Context, key []byte, value []byte) error {
		if t := kafka.EventType(value); t != string(analytics.EventIndexBuilt) {
			logger.Debug("ignoring event", "type", t)
			return nil
		}
		event, err := kafka.DecodeJSON[analytics.IndexEvent](value)
		if err != nil {
			logger.Error("failed to decode index event", "error", err, "key", string(key))
			return nil
		}
		if event.Fingerprint != "" && event.Fingerprint == engine.Fingerprint() {
			logger.Debug("snapshot already loaded", "fingerprint", event.Fingerprint)
			return nil
		}
		if err := engine.Load(ctx); err != nil {
			return fmt.Errorf("reloading snapshot %s: %w", event.Fingerprint, err)
		}
		if cache != nil {
			if err := cache.Invalidate(ctx); err != nil {
				logger.Warn("cache invalidation after reload failed", "error", err)
			}
		}
		logger.Info("snapshot reloaded",
			"fingerprint", engine.Fingerprint(),
			"announced", event.Fingerprint,
			"documents", event.Documents,
		)
		return nil
	}
}
