// Package config loads the YAML configuration shared by every command,
// applies PS_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/tokenizer"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RateLimit is requests per minute per client address; 0 disables.
	RateLimit      int      `yaml:"rateLimit"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty Host
// disables the record store.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Enabled reports whether a database is configured.
func (p PostgresConfig) Enabled() bool { return p.Host != "" }

// KafkaConfig holds Kafka broker and topic settings. No brokers disables
// event publishing.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents  string `yaml:"searchEvents"`
	IndexComplete string `yaml:"indexComplete"`
	CorpusUpdates string `yaml:"corpusUpdates"`
}

// Enabled reports whether brokers are configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// leaves only the in-process cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// CorpusConfig describes where raw paper records come from and which
// venues are kept.
type CorpusConfig struct {
	InputPath string   `yaml:"inputPath"`
	Venues    []string `yaml:"venues"`
}

// IndexerConfig controls where snapshots live and how text is indexed.
type IndexerConfig struct {
	DataDir      string            `yaml:"dataDir"`
	SnapshotName string            `yaml:"snapshotName"`
	Compression  string            `yaml:"compression"`
	TextFields   []string          `yaml:"textFields"`
	Tokenizer    tokenizer.Options `yaml:"tokenizer"`
	LockTimeout  time.Duration     `yaml:"lockTimeout"`
}

// SearchConfig controls result limits, the local cache and reranking.
type SearchConfig struct {
	MaxResults     int      `yaml:"maxResults"`
	DefaultLimit   int      `yaml:"defaultLimit"`
	LocalCacheSize int      `yaml:"localCacheSize"`
	RerankPasses   []string `yaml:"rerankPasses"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AuthConfig guards corpus writes with API keys stored in PostgreSQL.
type AuthConfig struct {
	Enabled          bool `yaml:"enabled"`
	DefaultRateLimit int  `yaml:"defaultRateLimit"`
}

// Load starts from defaults, overlays the YAML file at path when path is
// not empty, then the environment.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Indexer.DataDir == "" {
		errs = append(errs, errors.New("indexer.dataDir is required"))
	}
	if c.Indexer.SnapshotName == "" {
		errs = append(errs, errors.New("indexer.snapshotName is required"))
	}
	switch strings.ToLower(c.Indexer.Compression) {
	case "", "zstd", "lz4", "none":
	default:
		errs = append(errs, fmt.Errorf("indexer.compression %q is not one of zstd, lz4, none", c.Indexer.Compression))
	}
	if len(c.Indexer.TextFields) == 0 {
		errs = append(errs, errors.New("indexer.textFields must name at least one field"))
	}
	if c.Search.DefaultLimit <= 0 {
		errs = append(errs, errors.New("search.defaultLimit must be positive"))
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		errs = append(errs, fmt.Errorf("search.maxResults %d below defaultLimit %d", c.Search.MaxResults, c.Search.DefaultLimit))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rateLimit must not be negative"))
	}
	if c.Auth.Enabled && !c.Postgres.Enabled() {
		errs = append(errs, errors.New("auth.enabled needs postgres.host for the key store"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not json or text", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  5 * time.Second,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "papersearch",
			User:            "papersearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "papersearch-analytics",
			Topics: KafkaTopics{
				SearchEvents:  "search-events",
				IndexComplete: "index-complete",
				CorpusUpdates: "corpus-updates",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Corpus: CorpusConfig{
			InputPath: "data/dblp.jsonl",
			Venues:    []string{"acl", "emnlp", "naacl", "eacl", "coling", "tacl", "cl"},
		},
		Indexer: IndexerConfig{
			DataDir:      "data/index",
			SnapshotName: "papers.psix",
			Compression:  "zstd",
			TextFields:   []string{"title"},
			Tokenizer:    tokenizer.DefaultOptions(),
			LockTimeout:  10 * time.Second,
		},
		Search: SearchConfig{
			MaxResults:     100,
			DefaultLimit:   10,
			LocalCacheSize: 1024,
			RerankPasses:   []string{"year", "venue", "author"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Auth: AuthConfig{
			DefaultRateLimit: 60,
		},
	}
}

// applyEnvOverrides lets PS_* variables override the file. A variable
// that is set but does not parse is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	env := &envReader{lookup: os.LookupEnv}
	env.setInt("PS_SERVER_PORT", &cfg.Server.Port)
	env.setInt("PS_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	env.setList("PS_SERVER_ALLOWED_ORIGINS", &cfg.Server.AllowedOrigins)
	env.setDuration("PS_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	env.setString("PS_POSTGRES_HOST", &cfg.Postgres.Host)
	env.setInt("PS_POSTGRES_PORT", &cfg.Postgres.Port)
	env.setString("PS_POSTGRES_DATABASE", &cfg.Postgres.Database)
	env.setString("PS_POSTGRES_USER", &cfg.Postgres.User)
	env.setString("PS_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	env.setString("PS_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	env.setList("PS_KAFKA_BROKERS", &cfg.Kafka.Brokers)
	env.setString("PS_REDIS_ADDR", &cfg.Redis.Addr)
	env.setString("PS_REDIS_PASSWORD", &cfg.Redis.Password)
	env.setDuration("PS_REDIS_CACHE_TTL", &cfg.Redis.CacheTTL)
	env.setString("PS_CORPUS_INPUT_PATH", &cfg.Corpus.InputPath)
	env.setList("PS_CORPUS_VENUES", &cfg.Corpus.Venues)
	env.setString("PS_INDEXER_DATA_DIR", &cfg.Indexer.DataDir)
	env.setString("PS_INDEXER_COMPRESSION", &cfg.Indexer.Compression)
	env.setList("PS_INDEXER_TEXT_FIELDS", &cfg.Indexer.TextFields)
	env.setInt("PS_SEARCH_DEFAULT_LIMIT", &cfg.Search.DefaultLimit)
	env.setInt("PS_SEARCH_MAX_RESULTS", &cfg.Search.MaxResults)
	env.setString("PS_LOGGING_LEVEL", &cfg.Logging.Level)
	env.setString("PS_LOGGING_FORMAT", &cfg.Logging.Format)
	env.setBool("PS_METRICS_ENABLED", &cfg.Metrics.Enabled)
	env.setInt("PS_METRICS_PORT", &cfg.Metrics.Port)
	env.setBool("PS_AUTH_ENABLED", &cfg.Auth.Enabled)
	return errors.Join(env.errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) setBool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

// setList splits on commas and drops empty items.
func (e *envReader) setList(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}
