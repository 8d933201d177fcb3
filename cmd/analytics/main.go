// Command analytics aggregates search and index events.
//
// It consumes the search-events and index-complete topics, keeps running
// totals in memory (query volume, latency percentiles, cache hit rate, top
// query words and venue filters, index builds) and serves them at
// GET /api/v1/analytics. With Postgres configured the totals are
// snapshotted every minute, kept for thirty days and restored on start.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/postgres"
)

const (
	snapshotInterval  = time.Minute
	snapshotRetention = 30 * 24 * time.Hour
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Kafka.Enabled() {
		slog.Error("kafka.brokers is required by the analytics service")
		os.Exit(1)
	}

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		ms, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer ms.Shutdown(context.Background())
	}

	agg := analytics.NewAggregator()
	checker := health.NewChecker()

	var history analytics.History
	if cfg.Postgres.Enabled() {
		db, err := postgres.Connect(ctx, cfg.Postgres, 5)
		if err != nil {
			slog.Warn("postgres unavailable, analytics will not survive restarts", "error", err)
		} else {
			defer db.Close()
			snapshots := snapshot.NewStore(db)
			if err := snapshots.EnsureSchema(ctx); err != nil {
				slog.Error("failed to prepare analytics store", "error", err)
				os.Exit(1)
			}
			if latest, err := snapshots.Latest(ctx); err != nil {
				slog.Warn("could not restore analytics", "error", err)
			} else if latest != nil {
				agg.Restore(*latest)
				slog.Info("analytics restored", "total_searches", latest.TotalSearches)
			}
			go snapshots.Run(ctx, agg, snapshotInterval, snapshotRetention)
			history = snapshots
			checker.Register("postgres", health.Optional(health.Ping(db.Ping)))
		}
	}

	group := cfg.Kafka.ConsumerGroup
	for _, topic := range []string{cfg.Kafka.Topics.SearchEvents, cfg.Kafka.Topics.IndexComplete} {
		c := kafka.NewConsumer(cfg.Kafka, topic, group, analytics.HandleEvent(agg))
		go func(topic string) {
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("analytics consumer stopped", "topic", topic, "error", err)
			}
		}(topic)
		slog.Info("consuming analytics events", "topic", topic, "group", group)
	}
	checker.Register("kafka", health.Ping(func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	}))

	h := analytics.NewHandler(agg, history)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.Metrics(m),
			middleware.RequestID,
		),
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
