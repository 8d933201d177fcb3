package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
)

func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "papers.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, ingestion.WriteJSONL(f, []record.Record{
		record.New("Neural machine translation", []string{"Jane Doe"}, 2017, "acl", "https://x.org/1"),
		record.New("Statistical machine translation", []string{"John Roe"}, 2012, "emnlp", "https://x.org/2"),
		record.New("Dependency parsing", []string{"Ann Lee"}, 2019, "acl", "https://x.org/3"),
	}))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestBuildInspectSearch(t *testing.T) {
	corpus := writeCorpus(t)
	dataDir := t.TempDir()

	out, err := run(t, "build", corpus, "--normalized", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "documents:   3")

	out, err = run(t, "inspect", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "compression  zstd")
	assert.Contains(t, out, "documents    3")

	out, err = run(t, "search", "machine", "translation", "--data-dir", dataDir, "--format", "json")
	require.NoError(t, err)
	var res executor.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "machine translation", res.Query)
	assert.Equal(t, 2, res.TotalHits)
}

func TestSearch_InMemoryWithFilters(t *testing.T) {
	corpus := writeCorpus(t)
	out, err := run(t, "search", "translation", "--input", corpus, "--normalized",
		"--data-dir", t.TempDir(), "--venue", "ACL", "--year-min", "2015")
	require.NoError(t, err)
	assert.Contains(t, out, "1 matches for")
	assert.Contains(t, out, "Neural machine translation")
	assert.NotContains(t, out, "Statistical")
}

func TestSearch_NoSnapshot(t *testing.T) {
	_, err := run(t, "search", "anything", "--data-dir", t.TempDir())
	assert.ErrorContains(t, err, "--input")
}

func TestFilter_WritesNormalized(t *testing.T) {
	raw := filepath.Join(t.TempDir(), "dblp.jsonl")
	line := `{"author":["Matt Garley","Julia Hockenmaier"],"title":["Beefmoves."],"year":["2012"],` +
		`"ee":["https://www.aclweb.org/anthology/P12-2027/"],"url":["db/conf/acl/acl2012-2.html#GarleyH12"]}` + "\n" +
		`{"author":["A B"],"title":["Vision."],"year":["2012"],"ee":["https://x.org/v"],"url":["db/conf/cvpr/cvpr2012.html#B12"]}` + "\n"
	require.NoError(t, os.WriteFile(raw, []byte(line), 0o644))

	out, err := run(t, "filter", raw)
	require.NoError(t, err)
	recs, stats, err := ingestion.NewReader(nil, nil).ReadPapers(t.Context(), bytes.NewBufferString(out))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Kept)
	assert.Equal(t, "acl", recs[0].Venue())
}

type memKeys struct {
	keys []apikey.KeyInfo
}

func (m *memKeys) CreateKey(_ context.Context, name string, rateLimit int, expiresAt *time.Time) (string, error) {
	m.keys = append(m.keys, apikey.KeyInfo{ID: "1", Name: name, RateLimit: rateLimit, IsActive: true, ExpiresAt: expiresAt})
	return "psk_test", nil
}

func (m *memKeys) RevokeKey(_ context.Context, keyOrID string) error {
	for i, k := range m.keys {
		if k.ID == keyOrID {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			return nil
		}
	}
	return apikey.ErrInvalidKey
}

func (m *memKeys) ListKeys(context.Context) ([]apikey.KeyInfo, error) {
	return m.keys, nil
}

func TestKeys_CreateListRevoke(t *testing.T) {
	store := &memKeys{}
	orig := openKeyStore
	openKeyStore = func(context.Context, *config.Config) (keyStore, func() error, error) {
		return store, func() error { return nil }, nil
	}
	t.Cleanup(func() { openKeyStore = orig })

	out, err := run(t, "keys", "create", "nightly-loader", "--expires-in", "24h")
	require.NoError(t, err)
	assert.Equal(t, "psk_test\n", out)
	require.Len(t, store.keys, 1)
	assert.Equal(t, 60, store.keys[0].RateLimit, "falls back to auth.defaultRateLimit")
	require.NotNil(t, store.keys[0].ExpiresAt)

	out, err = run(t, "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "nightly-loader")
	assert.Contains(t, out, "RATE/MIN")

	out, err = run(t, "keys", "revoke", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked")

	_, err = run(t, "keys", "revoke", "1")
	assert.ErrorIs(t, err, apikey.ErrInvalidKey)

	out, err = run(t, "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no active keys")
}

func TestKeys_NeedPostgres(t *testing.T) {
	_, err := run(t, "keys", "list")
	assert.ErrorContains(t, err, "postgres.host")
}
