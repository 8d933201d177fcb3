package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
)

type memRemote struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
	gets atomic.Int64
}

func newMemRemote() *memRemote { return &memRemote{data: map[string][]byte{}} }

func (m *memRemote) Get(_ context.Context, key string) ([]byte, error) {
	m.gets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (m *memRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memRemote) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func sampleResult() *executor.SearchResult {
	return &executor.SearchResult{
		Query:     "deep learning",
		TotalHits: 1,
		Results: []executor.ResultItem{{
			Record:   record.New("Deep learning", []string{"Jane Doe"}, 2019, "acl", "https://x.org/1"),
			Distance: 0.25,
		}},
		Sort:  "relevance",
		Limit: 10,
	}
}

func TestGetOrCompute_LocalOnly(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c, err := New(Config{LocalSize: 8}, nil, m)
	require.NoError(t, err)

	calls := 0
	compute := func(context.Context) (*executor.SearchResult, error) { calls++; return sampleResult(), nil }
	req := executor.Request{Query: "deep learning"}

	_, hit, err := c.GetOrCompute(context.Background(), "fp1", req, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	got, hit, err := c.GetOrCompute(context.Background(), "fp1", req, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0.25, got.Results[0].Distance)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))

	_, hit, err = c.GetOrCompute(context.Background(), "fp2", req, compute)
	require.NoError(t, err)
	assert.False(t, hit, "new fingerprint misses")
	assert.Equal(t, 2, calls)
}

func TestGetOrCompute_RemoteTier(t *testing.T) {
	remote := newMemRemote()
	writer, err := New(Config{}, remote, nil)
	require.NoError(t, err)
	req := executor.Request{Query: "deep learning", Limit: 5}
	_, _, err = writer.GetOrCompute(context.Background(), "fp", req, func(context.Context) (*executor.SearchResult, error) {
		return sampleResult(), nil
	})
	require.NoError(t, err)

	reader, err := New(Config{}, remote, nil)
	require.NoError(t, err)
	got, hit, err := reader.GetOrCompute(context.Background(), "fp", req, func(context.Context) (*executor.SearchResult, error) {
		t.Fatal("compute must not run on a remote hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Deep learning", got.Results[0].Record.Title())
	assert.Equal(t, []string{"Jane Doe"}, got.Results[0].Record.Authors())
}

func TestGetOrCompute_ComputeError(t *testing.T) {
	c, err := New(Config{}, nil, nil)
	require.NoError(t, err)
	boom := errors.New("boom")
	_, _, err = c.GetOrCompute(context.Background(), "fp", executor.Request{}, func(context.Context) (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Stats().LocalEntries)
}

func TestRemoteFailuresTripBreaker(t *testing.T) {
	remote := newMemRemote()
	remote.err = errors.New("connection refused")
	c, err := New(Config{LocalSize: 1}, remote, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		req := executor.Request{Query: "q", Offset: i}
		_, _, err := c.GetOrCompute(context.Background(), "fp", req, func(context.Context) (*executor.SearchResult, error) {
			return sampleResult(), nil
		})
		require.NoError(t, err, "remote failures never fail a search")
	}
	assert.Equal(t, "open", c.Stats().Breaker)
	assert.Less(t, remote.gets.Load(), int64(10))
}

func TestInvalidateClosesBreaker(t *testing.T) {
	remote := newMemRemote()
	remote.err = errors.New("connection refused")
	c, err := New(Config{LocalSize: 1}, remote, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, _, _ = c.GetOrCompute(context.Background(), "fp", executor.Request{Query: "q", Offset: i}, func(context.Context) (*executor.SearchResult, error) {
			return sampleResult(), nil
		})
	}
	require.Equal(t, "open", c.Stats().Breaker)

	remote.mu.Lock()
	remote.err = nil
	remote.mu.Unlock()
	require.NoError(t, c.Invalidate(context.Background()))
	assert.Equal(t, "closed", c.Stats().Breaker)
}

func TestInvalidate(t *testing.T) {
	remote := newMemRemote()
	c, err := New(Config{}, remote, nil)
	require.NoError(t, err)
	_, _, err = c.GetOrCompute(context.Background(), "fp", executor.Request{Query: "x"}, func(context.Context) (*executor.SearchResult, error) {
		return sampleResult(), nil
	})
	require.NoError(t, err)
	require.Len(t, remote.data, 1)

	require.NoError(t, c.Invalidate(context.Background()))
	assert.Empty(t, remote.data)
	assert.Zero(t, c.Stats().LocalEntries)
}

func TestSingleflight(t *testing.T) {
	c, err := New(Config{}, nil, nil)
	require.NoError(t, err)
	var calls atomic.Int64
	release := make(chan struct{})
	compute := func(context.Context) (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return sampleResult(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "fp", executor.Request{Query: "same"}, compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int64(2))
}

func TestGetOrCompute_SharedWorkSurvivesFirstCallerCancel(t *testing.T) {
	c, err := New(Config{}, nil, nil)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var computeErr atomic.Value
	compute := func(ctx context.Context) (*executor.SearchResult, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			computeErr.Store(err)
			return nil, err
		}
		return sampleResult(), nil
	}
	req := executor.Request{Query: "shared"}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(first, "fp", req, compute)
		firstErr <- err
	}()
	<-started

	secondRes := make(chan *executor.SearchResult, 1)
	secondErr := make(chan error, 1)
	go func() {
		res, _, err := c.GetOrCompute(context.Background(), "fp", req, compute)
		secondRes <- res
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	require.NoError(t, <-secondErr)
	assert.Equal(t, sampleResult(), <-secondRes)
	assert.Nil(t, computeErr.Load())
}

func TestGetOrCompute_ComputeTimeout(t *testing.T) {
	c, err := New(Config{ComputeTimeout: 20 * time.Millisecond}, nil, nil)
	require.NoError(t, err)

	_, _, err = c.GetOrCompute(context.Background(), "fp", executor.Request{Query: "slow"}, func(ctx context.Context) (*executor.SearchResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKey_Normalization(t *testing.T) {
	y := 2019
	a := executor.Request{Query: "Deep  Learning", Filters: executor.Filters{Venues: []string{"ACL", "emnlp"}, YearMin: &y}}
	b := executor.Request{Query: "deep learning", Filters: executor.Filters{Venues: []string{"emnlp", " acl"}, YearMin: &y}}
	assert.Equal(t, Key("fp", a), Key("fp", b))

	c := b
	c.Limit = 5
	assert.NotEqual(t, Key("fp", b), Key("fp", c))
	assert.NotEqual(t, Key("fp", b), Key("other", b))

	d := b
	d.Filters.YearMin = nil
	assert.NotEqual(t, Key("fp", b), Key("fp", d))
	assert.True(t, strings.HasPrefix(Key("fp", a), keyPrefix))
}
