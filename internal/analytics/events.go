// Package analytics records what users search for. Searchers emit events
// through a Collector onto Kafka; the analytics service folds them into an
// Aggregator and serves the totals.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventIndexBuilt EventType = "index_built"
)

// SearchEvent describes one answered query. Type is EventZeroResult when
// the filters left nothing.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Words     []string  `json:"words"`
	Venues    []string  `json:"venues,omitempty"`
	YearMin   *int      `json:"year_min,omitempty"`
	YearMax   *int      `json:"year_max,omitempty"`
	Sort      string    `json:"sort"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// IndexEvent announces a freshly written snapshot. Searchers reload on it.
type IndexEvent struct {
	Type        EventType `json:"type"`
	Fingerprint string    `json:"fingerprint"`
	Path        string    `json:"path"`
	Documents   int       `json:"documents"`
	Vocabulary  int       `json:"vocabulary"`
	DurationMs  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}
