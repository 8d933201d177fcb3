package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/rerank"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/tracing"
)

// Index is the ranked view of the corpus the executor queries.
type Index interface {
	RunScored(query string) ([]ranker.Hit[record.Record], error)
}

// Filters remove records from the ranked list before reranking.
type Filters struct {
	YearMin *int     `json:"year_min,omitempty"`
	YearMax *int     `json:"year_max,omitempty"`
	Venues  []string `json:"venues,omitempty"`
	Sort    string   `json:"sort,omitempty"`
}

type Request struct {
	Query   string  `json:"query"`
	Filters Filters `json:"filters"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

type ResultItem struct {
	Record   record.Record `json:"record"`
	Distance float64       `json:"distance"`
}

type SearchResult struct {
	Query     string       `json:"query"`
	TotalHits int          `json:"total_hits"`
	Results   []ResultItem `json:"results"`
	Sort      rerank.Order `json:"sort"`
	Offset    int          `json:"offset"`
	Limit     int          `json:"limit"`
	TookMs    int64        `json:"took_ms"`
}

type Config struct {
	DefaultLimit int
	MaxLimit     int
}

type Executor struct {
	index    Index
	pipeline *rerank.Pipeline
	cfg      Config
	logger   *slog.Logger
}

func New(index Index, pipeline *rerank.Pipeline, cfg Config) *Executor {
	if pipeline == nil {
		pipeline = rerank.NewPipeline()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	return &Executor{
		index:    index,
		pipeline: pipeline,
		cfg:      cfg,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

// Search ranks the corpus against req.Query, drops records outside the
// filters, reranks what is left and returns one page of it.
func (e *Executor) Search(ctx context.Context, req Request) (*SearchResult, error) {
	start := time.Now()
	order, err := rerank.ParseOrder(req.Filters.Sort)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "%v", err)
	}
	limit, err := e.limit(req)
	if err != nil {
		return nil, err
	}
	if f := req.Filters; f.YearMin != nil && f.YearMax != nil && *f.YearMin > *f.YearMax {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "year_min %d after year_max %d", *f.YearMin, *f.YearMax)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, span := tracing.StartChildSpan(ctx, "rank")
	hits, err := e.index.RunScored(req.Query)
	span.SetAttr("hits", len(hits))
	span.End()
	if err != nil {
		return nil, fmt.Errorf("ranking query: %w", err)
	}

	_, span = tracing.StartChildSpan(ctx, "filter")
	kept := filter(hits, req.Filters)
	span.SetAttr("kept", len(kept))
	span.End()

	_, span = tracing.StartChildSpan(ctx, "rerank")
	reranked := rerank.Apply(e.pipeline, req.Query, kept, hitRecord, order)
	span.SetAttr("order", string(order))
	span.End()

	page := paginate(reranked, req.Offset, limit)
	items := make([]ResultItem, len(page))
	for i, h := range page {
		items[i] = ResultItem{Record: h.Payload, Distance: h.Distance}
	}

	took := time.Since(start)
	e.logger.Debug("query executed",
		"query", req.Query,
		"ranked", len(hits),
		"filtered", len(kept),
		"returned", len(items),
		"sort", order,
		"duration_ms", took.Milliseconds(),
	)
	return &SearchResult{
		Query:     req.Query,
		TotalHits: len(kept),
		Results:   items,
		Sort:      order,
		Offset:    req.Offset,
		Limit:     limit,
		TookMs:    took.Milliseconds(),
	}, nil
}

func (e *Executor) limit(req Request) (int, error) {
	if req.Limit < 0 {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "negative limit %d", req.Limit)
	}
	if req.Offset < 0 {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "negative offset %d", req.Offset)
	}
	switch {
	case req.Limit == 0:
		return e.cfg.DefaultLimit, nil
	case req.Limit > e.cfg.MaxLimit:
		return e.cfg.MaxLimit, nil
	}
	return req.Limit, nil
}

func filter(hits []ranker.Hit[record.Record], f Filters) []ranker.Hit[record.Record] {
	venues := make(map[string]struct{}, len(f.Venues))
	for _, v := range f.Venues {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			venues[v] = struct{}{}
		}
	}
	out := make([]ranker.Hit[record.Record], 0, len(hits))
	for _, h := range hits {
		r := h.Payload
		if f.YearMin != nil && r.Year() < *f.YearMin {
			continue
		}
		if f.YearMax != nil && r.Year() > *f.YearMax {
			continue
		}
		if len(venues) > 0 {
			if _, ok := venues[strings.ToLower(r.Venue())]; !ok {
				continue
			}
		}
		out = append(out, h)
	}
	return out
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func hitRecord(h ranker.Hit[record.Record]) record.Record { return h.Payload }
