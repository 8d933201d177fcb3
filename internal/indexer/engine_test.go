package indexer

import (
	"context"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
)

var papers = []record.Record{
	record.New("Deep learning for vision", []string{"Jane Doe"}, 2019, "cvpr", "u1"),
	record.New("Shallow parsing methods", []string{"John Roe"}, 2018, "acl", "u2"),
	record.New("Deep reinforcement learning", []string{"Ann Lee"}, 2020, "icml", "u3"),
}

func testConfig(t *testing.T) config.IndexerConfig {
	return config.IndexerConfig{
		DataDir:      t.TempDir(),
		SnapshotName: "papers.psix",
		Compression:  "zstd",
		TextFields:   []string{"title"},
		Tokenizer:    tokenizer.DefaultOptions(),
	}
}

func newEngine(t *testing.T, cfg config.IndexerConfig) (*Engine, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	e, err := NewEngine(cfg, m)
	require.NoError(t, err)
	return e, m
}

func TestEngine_BuildSearch(t *testing.T) {
	e, m := newEngine(t, testConfig(t))
	assert.False(t, e.Ready())
	_, err := e.RunScored("deep")
	assert.ErrorIs(t, err, apperrors.ErrNotFitted)

	require.NoError(t, e.Build(context.Background(), papers))
	assert.True(t, e.Ready())
	assert.NotEmpty(t, e.Fingerprint())

	hits, err := e.RunScored("deep learning")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Deep reinforcement learning", hits[0].Payload.Title())
	assert.Equal(t, "Deep learning for vision", hits[1].Payload.Title())

	stats := e.Stats()
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, "build", stats.Source)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CorpusDocuments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("build", "ok")))
}

func TestEngine_FailedBuildKeepsPrevious(t *testing.T) {
	e, _ := newEngine(t, testConfig(t))
	require.NoError(t, e.Build(context.Background(), papers))
	fp := e.Fingerprint()

	err := e.Build(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrEmptyCorpus)
	assert.Equal(t, fp, e.Fingerprint())

	hits, err := e.RunScored("parsing")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestEngine_SaveLoadRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	src, _ := newEngine(t, cfg)
	require.NoError(t, src.Build(context.Background(), papers))
	path, err := src.Save(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	dst, _ := newEngine(t, cfg)
	require.NoError(t, dst.Load(context.Background()))
	assert.Equal(t, src.Fingerprint(), dst.Fingerprint())
	assert.Equal(t, "load", dst.Stats().Source)

	for _, q := range []string{"deep learning", "parsing", "vision methods", "", "unknown words"} {
		want, err := src.RunScored(q)
		require.NoError(t, err)
		got, err := dst.RunScored(q)
		require.NoError(t, err)
		assert.Equal(t, want, got, q)
	}
}

func TestEngine_LoadCorruptKeepsPrevious(t *testing.T) {
	cfg := testConfig(t)
	e, _ := newEngine(t, cfg)
	require.NoError(t, e.Build(context.Background(), papers))
	fp := e.Fingerprint()

	require.NoError(t, os.WriteFile(e.SnapshotPath(), []byte("PSIX garbage that is long enough!!"), 0o644))
	err := e.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
	assert.Equal(t, fp, e.Fingerprint())
}

func TestEngine_LoadMissing(t *testing.T) {
	e, _ := newEngine(t, testConfig(t))
	err := e.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, e.Ready())
}

func TestEngine_SaveBeforeBuild(t *testing.T) {
	e, _ := newEngine(t, testConfig(t))
	_, err := e.Save(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotFitted)
}

func TestEngine_TextFields(t *testing.T) {
	cfg := testConfig(t)
	cfg.TextFields = []string{"title", "authors"}
	e, _ := newEngine(t, cfg)
	require.NoError(t, e.Build(context.Background(), papers))

	hits, err := e.RunScored("doe")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Deep learning for vision", hits[0].Payload.Title())
}

func TestNewEngine_BadCompression(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compression = "brotli"
	_, err := NewEngine(cfg, nil)
	assert.Error(t, err)
}
