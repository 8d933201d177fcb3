// Package handler serves the search HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/tracing"
)

type Searcher interface {
	Search(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
}

// IndexInfo describes the index being served. *indexer.Engine satisfies it.
type IndexInfo interface {
	Fingerprint() string
	Stats() indexer.Stats
}

// EventTracker receives one event per answered query.
type EventTracker interface {
	Track(event analytics.SearchEvent)
}

type Handler struct {
	searcher  Searcher
	index     IndexInfo
	cache     *cache.QueryCache
	collector EventTracker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New wires the handler. queryCache, collector and m may be nil.
func New(s Searcher, index IndexInfo, queryCache *cache.QueryCache, collector EventTracker, m *metrics.Metrics) *Handler {
	return &Handler{
		searcher:  s,
		index:     index,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search handles GET /api/v1/search?q=&year_min=&year_max=&venue=&sort=&limit=&offset=.
// venue may repeat or hold a comma-separated list.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "search", middleware.GetRequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(ctx, log)
	}()

	req, err := ParseRequest(r.URL.Query())
	if err != nil {
		h.observe("invalid", "bypass", start, -1)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	compute := func(ctx context.Context) (*executor.SearchResult, error) {
		return h.searcher.Search(ctx, req)
	}
	var (
		result      *executor.SearchResult
		cacheStatus = "bypass"
	)
	fingerprint := ""
	if h.index != nil {
		fingerprint = h.index.Fingerprint()
	}
	if h.cache != nil && fingerprint != "" {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, fingerprint, req, compute)
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = compute(ctx)
	}

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		outcome := "error"
		if status == http.StatusBadRequest {
			outcome = "invalid"
		}
		h.observe(outcome, cacheStatus, start, -1)
		log.Error("search execution failed", "query", req.Query, "error", err, "status_code", status)
		h.writeError(w, status, publicMessage(status, err))
		return
	}

	// cached results are shared; answer with a copy
	resp := *result
	resp.Query = req.Query
	took := time.Since(start)
	resp.TookMs = took.Milliseconds()

	span.SetAttr("cache", cacheStatus)
	span.SetAttr("total_hits", resp.TotalHits)

	outcome := "ok"
	if resp.TotalHits == 0 {
		outcome = "zero_result"
	}
	h.observe(outcome, cacheStatus, start, resp.TotalHits)

	log.Info("search completed",
		"query", req.Query,
		"total_hits", resp.TotalHits,
		"returned", len(resp.Results),
		"cache", cacheStatus,
		"latency_ms", resp.TookMs,
	)
	if h.collector != nil {
		eventType := analytics.EventSearch
		if resp.TotalHits == 0 {
			eventType = analytics.EventZeroResult
		}
		h.collector.Track(analytics.SearchEvent{
			Type:      eventType,
			Query:     req.Query,
			Words:     parser.Parse(req.Query).Words,
			Venues:    req.Filters.Venues,
			YearMin:   req.Filters.YearMin,
			YearMax:   req.Filters.YearMax,
			Sort:      string(resp.Sort),
			TotalHits: resp.TotalHits,
			Returned:  len(resp.Results),
			LatencyMs: resp.TookMs,
			CacheHit:  cacheStatus == "hit",
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, &resp)
}

// ParseRequest maps query parameters onto an executor request. Range and
// sort checks are left to the executor.
func ParseRequest(v url.Values) (executor.Request, error) {
	req := executor.Request{
		Query: v.Get("q"),
		Filters: executor.Filters{
			Sort: v.Get("sort"),
		},
	}
	var err error
	if req.Filters.YearMin, err = optionalInt(v, "year_min"); err != nil {
		return req, err
	}
	if req.Filters.YearMax, err = optionalInt(v, "year_max"); err != nil {
		return req, err
	}
	for _, raw := range v["venue"] {
		for _, venue := range strings.Split(raw, ",") {
			if venue = strings.ToLower(strings.TrimSpace(venue)); venue != "" {
				req.Filters.Venues = append(req.Filters.Venues, venue)
			}
		}
	}
	if n, err := optionalInt(v, "limit"); err != nil {
		return req, err
	} else if n != nil {
		req.Limit = *n
	}
	if n, err := optionalInt(v, "offset"); err != nil {
		return req, err
	} else if n != nil {
		req.Offset = *n
	}
	return req, nil
}

func optionalInt(v url.Values, key string) (*int, error) {
	s := strings.TrimSpace(v.Get(key))
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "%s must be an integer", key)
	}
	return &n, nil
}

// IndexStats handles GET /api/v1/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	if h.index != nil {
		body["index"] = h.index.Stats()
	}
	if h.cache != nil {
		body["cache"] = h.cache.Stats()
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":          stats.Hits,
		"misses":        stats.Misses,
		"total":         total,
		"hit_rate":      strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
		"local_entries": stats.LocalEntries,
		"remote":        stats.Remote,
		"breaker":       stats.Breaker,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) observe(outcome, cacheStatus string, start time.Time, hits int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	if hits >= 0 {
		h.metrics.SearchResultsCount.Observe(float64(hits))
	}
}

// publicMessage hides internal error detail from clients.
func publicMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusServiceUnavailable:
		return "index not ready"
	case http.StatusGatewayTimeout:
		return "search timed out"
	default:
		return "search failed"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
