package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "papers.psix", cfg.Indexer.SnapshotName)
	assert.Equal(t, []string{"title"}, cfg.Indexer.TextFields)
	assert.Equal(t, 2, cfg.Indexer.Tokenizer.MinLength)
	assert.Equal(t, []string{"year", "venue", "author"}, cfg.Search.RerankPasses)
	assert.False(t, cfg.Postgres.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
server:
  port: 9000
  requestTimeout: 2s
indexer:
  compression: lz4
  textFields: [title, authors]
  tokenizer:
    minLength: 3
    stem: true
search:
  defaultLimit: 20
  maxResults: 40
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("PS_REDIS_ADDR", "localhost:6379")
	t.Setenv("PS_CORPUS_VENUES", "acl, emnlp ,")
	t.Setenv("PS_SERVER_PORT", "9100")
	t.Setenv("PS_SERVER_RATE_LIMIT", "120")
	t.Setenv("PS_SERVER_ALLOWED_ORIGINS", "https://papers.example.org")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "lz4", cfg.Indexer.Compression)
	assert.Equal(t, []string{"title", "authors"}, cfg.Indexer.TextFields)
	assert.Equal(t, 3, cfg.Indexer.Tokenizer.MinLength)
	assert.True(t, cfg.Indexer.Tokenizer.Stem)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, []string{"acl", "emnlp"}, cfg.Corpus.Venues)
	assert.Equal(t, 120, cfg.Server.RateLimit)
	assert.Equal(t, []string{"https://papers.example.org"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoad_MalformedEnv(t *testing.T) {
	t.Setenv("PS_SERVER_PORT", "eighty")
	t.Setenv("PS_AUTH_ENABLED", "sometimes")
	t.Setenv("PS_REDIS_CACHE_TTL", "90s")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PS_SERVER_PORT")
	assert.Contains(t, err.Error(), "PS_AUTH_ENABLED")
	assert.NotContains(t, err.Error(), "PS_REDIS_CACHE_TTL")
}

func TestEnvReader(t *testing.T) {
	env := &envReader{lookup: func(k string) (string, bool) {
		v, ok := map[string]string{"TTL": "2m", "BLANK": "  ", "N": " 7 "}[k]
		return v, ok
	}}
	ttl, n, s := time.Second, 0, "keep"
	env.setDuration("TTL", &ttl)
	env.setInt("N", &n)
	env.setString("BLANK", &s)
	assert.Empty(t, env.errs)
	assert.Equal(t, 2*time.Minute, ttl)
	assert.Equal(t, 7, n)
	assert.Equal(t, "keep", s)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Indexer.Compression = "gzip"
	cfg.Search.MaxResults = 1
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compression")
	assert.Contains(t, err.Error(), "maxResults")
	assert.Contains(t, err.Error(), "logging.format")
}

func TestValidate_AuthNeedsPostgres(t *testing.T) {
	cfg := defaultConfig()
	cfg.Auth.Enabled = true
	cfg.Server.RateLimit = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.enabled")
	assert.Contains(t, err.Error(), "rateLimit")

	cfg = defaultConfig()
	cfg.Auth.Enabled = true
	cfg.Postgres.Host = "db"
	assert.NoError(t, cfg.Validate())
}
