// Package publisher persists papers to the record store and announces the
// corpus change on Kafka so indexers rebuild.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/kafka"
)

// RecordWriter is the part of store.RecordStore the publisher needs.
type RecordWriter interface {
	Upsert(ctx context.Context, records []record.Record) (int, error)
	Count(ctx context.Context) (int64, error)
}

// Publisher coordinates record persistence and corpus update events.
type Publisher struct {
	store  RecordWriter
	events kafka.Publisher
	logger *slog.Logger
}

// New creates a Publisher. events may be nil, in which case no
// notification is sent and indexers must be rebuilt by hand.
func New(store RecordWriter, events kafka.Publisher) *Publisher {
	return &Publisher{
		store:  store,
		events: events,
		logger: slog.Default().With("component", "publisher"),
	}
}

// Ingest stores records and publishes a CorpusEvent. A failed publish is
// logged but does not fail the call: the records are already durable.
func (p *Publisher) Ingest(ctx context.Context, records []record.Record) (*ingestion.IngestResponse, error) {
	n, err := p.store.Upsert(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("storing papers: %w", err)
	}
	total, err := p.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting papers: %w", err)
	}

	status := "STORED"
	if p.events != nil && n > 0 {
		event := kafka.Event{
			Key: ingestion.EventCorpusUpdated,
			Value: ingestion.CorpusEvent{
				Type:       ingestion.EventCorpusUpdated,
				Accepted:   n,
				Total:      total,
				IngestedAt: time.Now().UTC(),
			},
		}
		if err := p.events.Publish(ctx, event); err != nil {
			p.logger.Error("failed to publish corpus update, indexers will not rebuild",
				"accepted", n,
				"error", err,
			)
		} else {
			status = "PUBLISHED"
		}
	}
	return &ingestion.IngestResponse{
		Accepted: n,
		Total:    total,
		Status:   status,
	}, nil
}
