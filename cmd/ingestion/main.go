// Command ingestion loads paper records into the record store.
//
// By default it serves POST /api/v1/papers, accepting either a JSON batch of
// normalized papers or raw DBLP JSONL. With -file it ingests one raw JSONL
// dump and exits. Every accepted batch is announced on the corpus-updates
// topic so the indexer can rebuild. With auth.enabled, POSTs need an API
// key issued by "papersearch keys create".
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml] [-file dblp.jsonl]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	file := flag.String("file", "", "ingest this raw JSONL dump and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Postgres.Enabled() {
		slog.Error("postgres.host is required by the ingestion service")
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

	var events kafka.Publisher
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusUpdates)
		defer producer.Close()
		events = producer
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.CorpusUpdates)
	}

	m := metrics.New(nil)
	pub := publisher.New(records, events)
	reader := ingestion.NewReader(cfg.Corpus.Venues, m)

	if *file != "" {
		if err := ingestFile(ctx, *file, reader, pub); err != nil {
			slog.Error("batch ingestion failed", "file", *file, "error", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Metrics.Enabled {
		ms, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer ms.Shutdown(context.Background())
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.Ping(db.Ping))
	if cfg.Kafka.Enabled() {
		checker.Register("kafka", health.Optional(health.Ping(func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		})))
	}

	h := handler.New(pub, reader)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/papers", h.Ingest)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	limiter := ratelimit.New(time.Minute)
	defer limiter.Close()
	chain := []func(http.Handler) http.Handler{middleware.Metrics(m), middleware.RequestID}
	if cfg.Auth.Enabled {
		validator := apikey.NewValidator(db)
		if err := validator.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare api key store", "error", err)
			os.Exit(1)
		}
		chain = append(chain,
			apikey.Require(validator, http.MethodPost),
			middleware.RateLimit(limiter, apikey.RateKey(cfg.Auth.DefaultRateLimit, middleware.ByClientIP(cfg.Server.RateLimit))),
		)
		slog.Info("api key auth enabled for ingestion")
	} else {
		chain = append(chain, middleware.RateLimit(limiter, middleware.ByClientIP(cfg.Server.RateLimit)))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, chain...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}

func ingestFile(ctx context.Context, path string, reader *ingestion.Reader, pub *publisher.Publisher) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, stats, err := reader.ReadJSONL(ctx, f)
	if err != nil {
		return err
	}
	slog.Info("dump parsed",
		"lines", stats.Lines,
		"kept", stats.Kept,
		"filtered", stats.Filtered,
		"malformed", stats.Malformed,
	)
	if len(recs) == 0 {
		slog.Warn("nothing to ingest")
		return nil
	}
	resp, err := pub.Ingest(ctx, recs)
	if err != nil {
		return err
	}
	slog.Info("dump ingested", "accepted", resp.Accepted, "total", resp.Total, "status", resp.Status)
	return nil
}
