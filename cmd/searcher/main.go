// Command searcher serves the paper search API.
//
// It loads the latest index snapshot from the data directory, answers
// GET /api/v1/search with ranked and reranked results, caches answers in
// process and optionally in Redis, and reloads the snapshot whenever the
// indexer announces a new one on Kafka.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/rerank"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/resilience"
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
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
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
	if err := engine.Load(ctx); err != nil {
		slog.Warn("no snapshot loaded, searches fail until the indexer publishes one",
			"path", engine.SnapshotPath(),
			"error", err,
		)
	} else {
		stats := engine.Stats()
		slog.Info("snapshot loaded",
			"documents", stats.Documents,
			"vocabulary", stats.Vocabulary,
			"fingerprint", stats.Fingerprint,
		)
	}

	passes, err := rerank.PassesByName(cfg.Search.RerankPasses)
	if err != nil {
		slog.Error("invalid rerank configuration", "error", err)
		os.Exit(1)
	}
	pipeline := rerank.NewPipeline(passes...)
	pipeline.Observer = m.ObservePromotion
	exec := executor.New(engine, pipeline, executor.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxResults,
	})

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled() {
		err := resilience.Retry(ctx, "redis-connect", resilience.RetryConfig{MaxAttempts: 3}, func() error {
			var err error
			redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
			return err
		})
		if err != nil {
			slog.Warn("redis unavailable, using the in-process cache only", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	var remote cache.Remote
	if redisClient != nil {
		remote = redisClient
	}
	queryCache, err := cache.New(cache.Config{
		LocalSize:      cfg.Search.LocalCacheSize,
		TTL:            cfg.Redis.CacheTTL,
		ComputeTimeout: cfg.Server.RequestTimeout,
	}, remote, m)
	if err != nil {
		slog.Error("failed to create query cache", "error", err)
		os.Exit(1)
	}
	slog.Info("query cache ready",
		"local_size", cfg.Search.LocalCacheSize,
		"remote", remote != nil,
		"ttl", cfg.Redis.CacheTTL,
	)

	var tracker handler.EventTracker
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, m, 10000)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector
		slog.Info("search event collector started", "topic", cfg.Kafka.Topics.SearchEvents)

		// every replica reloads, so each needs its own group
		host, _ := os.Hostname()
		reloader := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete,
			"papersearch-searcher-"+host, consumer.HandleIndexBuilt(engine, queryCache))
		go func() {
			if err := reloader.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("snapshot reload consumer stopped", "error", err)
			}
		}()
	} else {
		slog.Info("kafka not configured, search events and live reloads disabled")
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if !engine.Ready() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no snapshot loaded"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: engine.Fingerprint()}
	})
	if redisClient != nil {
		checker.Register("redis", health.Optional(health.Ping(redisClient.Ping)))
	}
	if cfg.Kafka.Enabled() {
		checker.Register("kafka", health.Optional(health.Ping(func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		})))
	}

	mux := http.NewServeMux()
	handler.New(exec, engine, queryCache, tracker, m).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := []func(http.Handler) http.Handler{middleware.Metrics(m), middleware.RequestID}
	if len(cfg.Server.AllowedOrigins) > 0 {
		chain = append(chain, middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	}
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(time.Minute)
		defer limiter.Close()
		chain = append(chain, middleware.RateLimit(limiter, middleware.ByClientIP(cfg.Server.RateLimit)))
		slog.Info("per-client rate limit enabled", "per_minute", cfg.Server.RateLimit)
	}
	chain = append(chain, middleware.Timeout(cfg.Server.RequestTimeout))

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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
