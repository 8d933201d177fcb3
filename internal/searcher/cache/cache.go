// Package cache memoizes search results in two tiers: an in-process LRU and
// an optional shared Redis tier. Keys embed the index fingerprint, so a
// rebuilt index never serves results computed against the old one.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/resilience"
)

const keyPrefix = "search:"

// Remote is the shared tier. *pkgredis.Client satisfies it.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Config struct {
	LocalSize      int
	TTL            time.Duration
	RemoteTimeout  time.Duration
	// ComputeTimeout bounds a shared computation, which outlives the
	// request that started it.
	ComputeTimeout time.Duration
}

type QueryCache struct {
	local   *lru.Cache[string, *executor.SearchResult]
	remote  Remote
	breaker *resilience.CircuitBreaker
	cfg     Config
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New builds the cache. remote and m may be nil.
func New(cfg Config, remote Remote, m *metrics.Metrics) (*QueryCache, error) {
	if cfg.LocalSize <= 0 {
		cfg.LocalSize = 1024
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 50 * time.Millisecond
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = 5 * time.Second
	}
	local, err := lru.New[string, *executor.SearchResult](cfg.LocalSize)
	if err != nil {
		return nil, fmt.Errorf("creating local cache: %w", err)
	}
	c := &QueryCache{
		local:   local,
		remote:  remote,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("query-cache-redis", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(name string, _, to resilience.State) {
			if m != nil {
				m.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c, nil
}

// GetOrCompute returns the cached result for req under fingerprint, or
// runs compute once per key across concurrent callers and stores the
// result. The bool reports a cache hit. Cached results are shared and must
// not be modified.
//
// compute gets a context detached from any one caller and bounded by
// ComputeTimeout, so a caller that goes away does not fail the others
// waiting on the same key. Each caller still stops waiting when its own
// ctx is done.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	req executor.Request,
	compute func(context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := Key(fingerprint, req)
	if result, ok := c.get(ctx, key); ok {
		return result, true, nil
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	ch := c.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ComputeTimeout)
		defer cancel()
		result, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.set(shared, key, result)
		return result, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.SearchResult), false, nil
	}
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	if result, ok := c.local.Get(key); ok {
		c.hit("local")
		return result, true
	}
	if c.remote == nil {
		return nil, false
	}
	var data []byte
	err := c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.cfg.RemoteTimeout, "cache get", func(ctx context.Context) error {
			var err error
			data, err = c.remote.Get(ctx, key)
			if pkgredis.IsNilError(err) {
				data = nil
				return nil
			}
			return err
		})
	})
	if err != nil {
		c.logger.Warn("remote cache get failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	c.local.Add(key, &result)
	c.hit("remote")
	return &result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	c.local.Add(key, result)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.cfg.RemoteTimeout, "cache set", func(ctx context.Context) error {
			return c.remote.Set(ctx, key, data, c.cfg.TTL)
		})
	})
	if err != nil {
		c.logger.Warn("remote cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) hit(tier string) {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

// Invalidate empties the local tier and deletes every search key from the
// remote tier.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.local.Purge()
	if c.remote == nil {
		return nil
	}
	deleted, err := c.remote.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	// the flush reached redis, so stop short-circuiting it
	c.breaker.Reset()
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

type Stats struct {
	Hits         int64  `json:"hits"`
	Misses       int64  `json:"misses"`
	LocalEntries int    `json:"local_entries"`
	Remote       bool   `json:"remote"`
	Breaker      string `json:"breaker"`
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		LocalEntries: c.local.Len(),
		Remote:       c.remote != nil,
		Breaker:      c.breaker.State().String(),
	}
}

// Key derives the cache key for req against the index identified by
// fingerprint. Requests that differ only in query spacing or case, or in
// venue order or case, share a key.
func Key(fingerprint string, req executor.Request) string {
	venues := make([]string, 0, len(req.Filters.Venues))
	for _, v := range req.Filters.Venues {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			venues = append(venues, v)
		}
	}
	sort.Strings(venues)

	var b strings.Builder
	b.WriteString(strings.Join(strings.Fields(strings.ToLower(req.Query)), " "))
	b.WriteString("|ymin=")
	b.WriteString(optInt(req.Filters.YearMin))
	b.WriteString("|ymax=")
	b.WriteString(optInt(req.Filters.YearMax))
	b.WriteString("|venues=")
	b.WriteString(strings.Join(venues, ","))
	b.WriteString("|sort=")
	b.WriteString(strings.ToLower(strings.TrimSpace(req.Filters.Sort)))
	fmt.Fprintf(&b, "|limit=%d|offset=%d", req.Limit, req.Offset)

	hash := sha256.Sum256([]byte(b.String()))
	fp := fingerprint
	if len(fp) > 16 {
		fp = fp[:16]
	}
	return fmt.Sprintf("%s%s:%x", keyPrefix, fp, hash[:16])
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
