package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
)

const maxLineBytes = 16 << 20

// Stats counts what happened to each input line.
type Stats struct {
	Lines     int `json:"lines"`
	Kept      int `json:"kept"`
	Filtered  int `json:"filtered"`
	Malformed int `json:"malformed"`
}

// Reader converts DBLP-style JSON lines into records, keeping only venues
// in its allow-list.
type Reader struct {
	venues  map[string]struct{}
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReader keeps every venue when venues is empty. m may be nil.
func NewReader(venues []string, m *metrics.Metrics) *Reader {
	return &Reader{
		venues:  VenueSet(venues),
		metrics: m,
		logger:  slog.Default().With("component", "ingestion-reader"),
	}
}

// ReadJSONL reads raw papers from r in input order. Malformed lines and
// lines outside the venue allow-list are skipped and counted; only read
// errors and cancellation abort.
func (rd *Reader) ReadJSONL(ctx context.Context, r io.Reader) ([]record.Record, Stats, error) {
	var (
		out   []record.Record
		stats Stats
	)
	err := scanLines(ctx, r, func(n int, line string) {
		stats.Lines++
		if !CheckValidLine(line, rd.venues) {
			stats.Filtered++
			rd.count("filtered")
			return
		}
		var raw RawPaper
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			rd.malformed(&stats, n, err)
			return
		}
		if err := raw.Validate(); err != nil {
			rd.malformed(&stats, n, err)
			return
		}
		rec := raw.ToRecord()
		// the pre-check matched the venue anywhere in the line; url[0] decides
		if rd.venues != nil {
			if _, ok := rd.venues[rec.Venue()]; !ok {
				stats.Filtered++
				rd.count("filtered")
				return
			}
		}
		out = append(out, rec)
		stats.Kept++
		rd.count("kept")
	})
	if err != nil {
		return nil, stats, err
	}
	rd.logger.Info("raw corpus read",
		"lines", stats.Lines,
		"kept", stats.Kept,
		"filtered", stats.Filtered,
		"malformed", stats.Malformed,
	)
	return out, stats, nil
}

// ReadPapers reads already normalized papers, one JSON object per line in
// the shape written by WriteJSONL.
func (rd *Reader) ReadPapers(ctx context.Context, r io.Reader) ([]record.Record, Stats, error) {
	var (
		out   []record.Record
		stats Stats
	)
	err := scanLines(ctx, r, func(n int, line string) {
		stats.Lines++
		var rec record.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.Title() == "" {
			if err == nil {
				err = errors.New("missing title")
			}
			rd.malformed(&stats, n, err)
			return
		}
		if rd.venues != nil {
			if _, ok := rd.venues[rec.Venue()]; !ok {
				stats.Filtered++
				rd.count("filtered")
				return
			}
		}
		out = append(out, rec)
		stats.Kept++
		rd.count("kept")
	})
	if err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// WriteJSONL writes one normalized paper per line.
func WriteJSONL(w io.Writer, records []record.Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

func (rd *Reader) malformed(stats *Stats, line int, err error) {
	stats.Malformed++
	rd.count("malformed")
	rd.logger.Debug("skipping malformed line", "line", line, "error", err)
}

func (rd *Reader) count(result string) {
	if rd.metrics != nil {
		rd.metrics.RecordsIngested.WithLabelValues(result).Inc()
	}
}

// scanLines calls fn for every non-blank line with its 1-based number,
// checking ctx between lines.
func scanLines(ctx context.Context, r io.Reader, fn func(n int, line string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fn(n, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading line %d: %w", n+1, err)
	}
	return ctx.Err()
}
