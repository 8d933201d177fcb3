// Package indexer owns the fitted index for the paper corpus: it builds it
// from records, persists it as a snapshot file and restores it.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
)

const lockRetryDelay = 50 * time.Millisecond

// ErrLockTimeout is returned when another process holds the snapshot lock
// for longer than the configured timeout.
var ErrLockTimeout = errors.New("timed out waiting for snapshot lock")

// state is one fitted ranker and the header of its encoded form. It is
// replaced as a unit so the fingerprint always describes the ranker.
type state struct {
	ranker *ranker.Ranker[record.Record]
	header segment.Header
	source string
	at     time.Time
}

type Engine struct {
	cfg         config.IndexerConfig
	compression segment.Compression
	current     atomic.Pointer[state]
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewEngine prepares an empty engine. m may be nil.
func NewEngine(cfg config.IndexerConfig, m *metrics.Metrics) (*Engine, error) {
	c, err := segment.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if len(cfg.TextFields) == 0 {
		cfg.TextFields = record.DefaultTextFields
	}
	if cfg.SnapshotName == "" {
		cfg.SnapshotName = "papers.psix"
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	return &Engine{
		cfg:         cfg,
		compression: c,
		metrics:     m,
		logger:      slog.Default().With("component", "indexer"),
	}, nil
}

// SnapshotPath is where Save writes and Load reads.
func (e *Engine) SnapshotPath() string {
	return filepath.Join(e.cfg.DataDir, e.cfg.SnapshotName)
}

// Build fits a fresh ranker over records and makes it current. On error
// the previous ranker stays in place.
func (e *Engine) Build(ctx context.Context, records []record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text(e.cfg.TextFields)
	}

	r := ranker.New[record.Record](e.cfg.Tokenizer)
	if err := r.Fit(texts, records); err != nil {
		e.observeBuild("build", "error")
		return fmt.Errorf("fitting index over %d records: %w", len(records), err)
	}
	snap, err := r.Snapshot()
	if err != nil {
		return err
	}
	_, h, err := segment.Encode(snap, e.compression)
	if err != nil {
		e.observeBuild("build", "error")
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	e.install(&state{ranker: r, header: h, source: "build", at: time.Now()})

	took := time.Since(start)
	if e.metrics != nil {
		e.metrics.IndexBuildDuration.Observe(took.Seconds())
	}
	e.observeBuild("build", "ok")
	stats := r.Stats()
	e.logger.Info("index built",
		"documents", stats.Documents,
		"vocabulary", stats.Vocabulary,
		"fingerprint", h.Fingerprint(),
		"duration_ms", took.Milliseconds(),
	)
	return nil
}

// Save writes the current ranker to SnapshotPath under an exclusive file
// lock and returns the path.
func (e *Engine) Save(ctx context.Context) (string, error) {
	st := e.current.Load()
	if st == nil {
		return "", apperrors.ErrNotFitted
	}
	snap, err := st.ranker.Snapshot()
	if err != nil {
		return "", err
	}
	blob, _, err := segment.Encode(snap, e.compression)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	path := e.SnapshotPath()
	unlock, err := e.lock(ctx, true)
	if err != nil {
		return "", err
	}
	defer unlock()

	if err := segment.WriteFile(path, blob); err != nil {
		return "", err
	}
	if e.metrics != nil {
		e.metrics.SnapshotBytes.Set(float64(len(blob)))
	}
	e.logger.Info("snapshot saved",
		"path", path,
		"bytes", len(blob),
		"compression", st.header.Compression,
		"fingerprint", st.header.Fingerprint(),
	)
	return path, nil
}

// Load restores the snapshot at SnapshotPath under a shared file lock and
// makes it current. A corrupt or missing file leaves the engine as it was.
func (e *Engine) Load(ctx context.Context) error {
	path := e.SnapshotPath()
	unlock, err := e.lock(ctx, false)
	if err != nil {
		return err
	}
	blob, err := segment.ReadFile(path)
	unlock()
	if err != nil {
		e.observeBuild("load", "error")
		return err
	}

	snap, h, err := segment.Decode[record.Record](blob)
	if err != nil {
		e.observeBuild("load", "error")
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	r := ranker.New[record.Record](snap.Options)
	if err := r.Restore(snap); err != nil {
		e.observeBuild("load", "error")
		return fmt.Errorf("restoring %s: %w", path, err)
	}
	e.install(&state{ranker: r, header: h, source: "load", at: time.Now()})
	if e.metrics != nil {
		e.metrics.SnapshotBytes.Set(float64(len(blob)))
	}
	e.observeBuild("load", "ok")
	stats := r.Stats()
	e.logger.Info("snapshot loaded",
		"path", path,
		"documents", stats.Documents,
		"vocabulary", stats.Vocabulary,
		"fingerprint", h.Fingerprint(),
	)
	return nil
}

// RunScored ranks the current corpus against query.
func (e *Engine) RunScored(query string) ([]ranker.Hit[record.Record], error) {
	st := e.current.Load()
	if st == nil {
		return nil, apperrors.ErrNotFitted
	}
	return st.ranker.RunScored(query)
}

// Ranker returns the current ranker, or nil before Build or Load.
func (e *Engine) Ranker() *ranker.Ranker[record.Record] {
	if st := e.current.Load(); st != nil {
		return st.ranker
	}
	return nil
}

// Ready reports whether a ranker is installed.
func (e *Engine) Ready() bool { return e.current.Load() != nil }

// Fingerprint identifies the current index contents. It is empty before
// Build or Load.
func (e *Engine) Fingerprint() string {
	if st := e.current.Load(); st != nil {
		return st.header.Fingerprint()
	}
	return ""
}

type Stats struct {
	Ready       bool      `json:"ready"`
	Documents   int       `json:"documents"`
	Vocabulary  int       `json:"vocabulary"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Source      string    `json:"source,omitempty"`
	InstalledAt time.Time `json:"installed_at,omitempty"`
}

func (e *Engine) Stats() Stats {
	st := e.current.Load()
	if st == nil {
		return Stats{}
	}
	rs := st.ranker.Stats()
	return Stats{
		Ready:       true,
		Documents:   rs.Documents,
		Vocabulary:  rs.Vocabulary,
		Fingerprint: st.header.Fingerprint(),
		Source:      st.source,
		InstalledAt: st.at,
	}
}

func (e *Engine) install(st *state) {
	e.current.Store(st)
	if e.metrics != nil {
		rs := st.ranker.Stats()
		e.metrics.CorpusDocuments.Set(float64(rs.Documents))
		e.metrics.VocabularySize.Set(float64(rs.Vocabulary))
	}
}

func (e *Engine) observeBuild(source, status string) {
	if e.metrics != nil {
		e.metrics.IndexBuildsTotal.WithLabelValues(source, status).Inc()
	}
}

// lock takes the snapshot's sidecar lock file, exclusive for writers and
// shared for readers, waiting at most LockTimeout.
func (e *Engine) lock(ctx context.Context, exclusive bool) (func(), error) {
	fl := flock.New(e.SnapshotPath() + ".lock")
	if e.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.LockTimeout)
		defer cancel()
	}
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, fl.Path())
		}
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, fl.Path())
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			e.logger.Warn("releasing snapshot lock", "path", fl.Path(), "error", err)
		}
	}, nil
}
