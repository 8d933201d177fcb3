// Command indexer fits the TF-IDF index over the corpus and writes the
// snapshot the searchers load.
//
// The corpus comes from the Postgres record store, or from a JSONL file
// with -input. With -watch the indexer stays up and rebuilds whenever the
// ingestion service announces new records. Every snapshot written is
// announced on the index-complete topic.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-input papers.jsonl [-normalized]] [-watch]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/postgres"
)

const indexerGroup = "papersearch-indexer"

// fileSource reads the corpus from a JSONL file on every load.
type fileSource struct {
	path       string
	normalized bool
	reader     *ingestion.Reader
}

func (s fileSource) LoadAll(ctx context.Context) ([]record.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	read := s.reader.ReadJSONL
	if s.normalized {
		read = s.reader.ReadPapers
	}
	recs, stats, err := read(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	slog.Info("corpus file read",
		"path", s.path,
		"lines", stats.Lines,
		"kept", stats.Kept,
		"filtered", stats.Filtered,
		"malformed", stats.Malformed,
	)
	return recs, nil
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	input := flag.String("input", "", "build from this JSONL file instead of postgres")
	normalized := flag.Bool("normalized", false, "the -input file holds normalized papers rather than raw DBLP lines")
	watch := flag.Bool("watch", false, "keep running and rebuild on corpus updates")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "data_dir", cfg.Indexer.DataDir, "watch", *watch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if *watch && cfg.Metrics.Enabled {
		ms, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer ms.Shutdown(context.Background())
	}

	engine, err := indexer.NewEngine(cfg.Indexer, m)
	if err != nil {
		slog.Error("failed to create index engine", "error", err)
		os.Exit(1)
	}

	var source consumer.CorpusSource
	if *input != "" {
		source = fileSource{
			path:       *input,
			normalized: *normalized,
			reader:     ingestion.NewReader(cfg.Corpus.Venues, m),
		}
	} else {
		if !cfg.Postgres.Enabled() {
			slog.Error("no corpus source: set postgres.host or pass -input")
			os.Exit(1)
		}
		db, err := postgres.Connect(ctx, cfg.Postgres, 5)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		records := store.New(db)
		if err := records.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare record store", "error", err)
			os.Exit(1)
		}
		source = records
	}

	var events kafka.Publisher
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		events = producer
	}

	rb := consumer.NewRebuilder(engine, source, events)
	built, err := rb.Rebuild(ctx)
	if err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}
	slog.Info("snapshot written",
		"path", built.Path,
		"documents", built.Documents,
		"vocabulary", built.Vocabulary,
		"fingerprint", built.Fingerprint,
		"duration_ms", built.DurationMs,
	)
	if !*watch {
		return
	}

	if !cfg.Kafka.Enabled() {
		slog.Error("-watch needs kafka.brokers")
		os.Exit(1)
	}
	updates := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusUpdates, indexerGroup, consumer.HandleCorpusUpdate(rb))
	slog.Info("indexer watching for corpus updates",
		"topic", cfg.Kafka.Topics.CorpusUpdates,
		"group", indexerGroup,
	)
	if err := updates.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("corpus update consumer error", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer stopped")
}
