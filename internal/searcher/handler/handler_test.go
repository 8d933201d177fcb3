package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/rerank"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
)

var papers = []record.Record{
	record.New("Neural machine translation", []string{"Jane Doe"}, 2017, "acl", "https://x.org/1"),
	record.New("Statistical machine translation", []string{"John Roe"}, 2012, "emnlp", "https://x.org/2"),
	record.New("Machine translation evaluation", []string{"Ann Lee"}, 2020, "acl", "https://x.org/3"),
	record.New("Image segmentation", []string{"Bo Kim"}, 2019, "cvpr", "https://x.org/4"),
}

type tracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (t *tracker) Track(e analytics.SearchEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

type fixture struct {
	handler *Handler
	engine  *indexer.Engine
	metrics *metrics.Metrics
	events  *tracker
}

func newFixture(t *testing.T, build bool) *fixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	eng, err := indexer.NewEngine(config.IndexerConfig{
		DataDir:     t.TempDir(),
		Compression: "none",
		Tokenizer:   tokenizer.DefaultOptions(),
	}, m)
	require.NoError(t, err)
	if build {
		require.NoError(t, eng.Build(context.Background(), papers))
	}
	exec := executor.New(eng, rerank.NewPipeline(), executor.Config{DefaultLimit: 10, MaxLimit: 20})
	qc, err := cache.New(cache.Config{LocalSize: 16}, nil, m)
	require.NoError(t, err)
	ev := &tracker{}
	return &fixture{
		handler: New(exec, eng, qc, ev, m),
		engine:  eng,
		metrics: m,
		events:  ev,
	}
}

func (f *fixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, *executor.SearchResult) {
	t.Helper()
	mux := http.NewServeMux()
	f.handler.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusOK {
		return rec, nil
	}
	var res executor.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return rec, &res
}

func titles(res *executor.SearchResult) []string {
	out := make([]string, len(res.Results))
	for i, r := range res.Results {
		out[i] = r.Record.Title()
	}
	return out
}

func TestSearch_RanksAndReranks(t *testing.T) {
	f := newFixture(t, true)
	_, res := f.get(t, "/api/v1/search?q=machine+translation+acl")
	require.NotNil(t, res)
	assert.Equal(t, 3, res.TotalHits)
	assert.Equal(t, "machine translation acl", res.Query)
	assert.Equal(t, "emnlp", res.Results[2].Record.Venue(), "venue pass moves acl papers first")

	require.Len(t, f.events.events, 1)
	assert.Equal(t, analytics.EventSearch, f.events.events[0].Type)
	assert.Equal(t, []string{"machine", "translation", "acl"}, f.events.events[0].Words)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("ok")))
}

func TestSearch_FiltersAndSort(t *testing.T) {
	f := newFixture(t, true)
	_, res := f.get(t, "/api/v1/search?q=translation&venue=ACL&year_min=2015&sort=year")
	require.NotNil(t, res)
	assert.Equal(t, []string{"Machine translation evaluation", "Neural machine translation"}, titles(res))
	assert.Equal(t, rerank.OrderYear, res.Sort)

	_, res = f.get(t, "/api/v1/search?q=translation&venue=acl,emnlp&limit=1&offset=1")
	require.NotNil(t, res)
	assert.Equal(t, 3, res.TotalHits)
	assert.Len(t, res.Results, 1)
}

func TestSearch_ZeroAndEmptyQueries(t *testing.T) {
	f := newFixture(t, true)
	for _, q := range []string{"", "quantum+chromodynamics"} {
		_, res := f.get(t, "/api/v1/search?q="+q)
		require.NotNil(t, res, q)
		assert.Zero(t, res.TotalHits)
		assert.NotNil(t, res.Results)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, analytics.EventZeroResult, f.events.events[0].Type)
}

func TestSearch_InvalidParams(t *testing.T) {
	f := newFixture(t, true)
	for _, path := range []string{
		"/api/v1/search?q=x&limit=ten",
		"/api/v1/search?q=x&limit=-1",
		"/api/v1/search?q=x&offset=-3",
		"/api/v1/search?q=x&year_min=2020&year_max=2010",
		"/api/v1/search?q=x&sort=citations",
	} {
		rec, _ := f.get(t, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
	assert.Empty(t, f.events.events)
}

func TestSearch_NotReady(t *testing.T) {
	f := newFixture(t, false)
	rec, _ := f.get(t, "/api/v1/search?q=translation")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "index not ready")
}

func TestSearch_CacheHitAndRebuild(t *testing.T) {
	f := newFixture(t, true)
	f.get(t, "/api/v1/search?q=translation")
	f.get(t, "/api/v1/search?q=Translation")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheHitsTotal.WithLabelValues("local")))
	assert.True(t, f.events.events[1].CacheHit)

	require.NoError(t, f.engine.Build(context.Background(), papers[:2]))
	_, res := f.get(t, "/api/v1/search?q=translation")
	require.NotNil(t, res)
	assert.Equal(t, 2, res.TotalHits, "new fingerprint bypasses stale entries")
}

func TestParseRequest(t *testing.T) {
	v := url.Values{
		"q":        {"deep learning"},
		"venue":    {"ACL, emnlp", "naacl"},
		"year_min": {"2015"},
		"limit":    {"5"},
	}
	req, err := ParseRequest(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"acl", "emnlp", "naacl"}, req.Filters.Venues)
	require.NotNil(t, req.Filters.YearMin)
	assert.Equal(t, 2015, *req.Filters.YearMin)
	assert.Nil(t, req.Filters.YearMax)
	assert.Equal(t, 5, req.Limit)

	_, err = ParseRequest(url.Values{"year_max": {"soon"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStatsAndCacheEndpoints(t *testing.T) {
	f := newFixture(t, true)
	mux := http.NewServeMux()
	f.handler.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Index indexer.Stats `json:"index"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Index.Documents)
	assert.NotEmpty(t, body.Index.Fingerprint)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"breaker":"closed"`)
}
