package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/kafka"
)

type sliceSource struct {
	records []record.Record
	loads   int
	err     error
}

func (s *sliceSource) LoadAll(context.Context) ([]record.Record, error) {
	s.loads++
	return s.records, s.err
}

type capture struct{ events []kafka.Event }

func (c *capture) Publish(_ context.Context, e kafka.Event) error {
	c.events = append(c.events, e)
	return nil
}

func (c *capture) PublishBatch(ctx context.Context, es []kafka.Event) error {
	for _, e := range es {
		_ = c.Publish(ctx, e)
	}
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

var corpus = []record.Record{
	record.New("Neural parsing", []string{"A B"}, 2019, "acl", "https://x.org/1"),
	record.New("Statistical parsing", []string{"C D"}, 2010, "acl", "https://x.org/2"),
}

func engineAt(t *testing.T, dir string) *indexer.Engine {
	t.Helper()
	e, err := indexer.NewEngine(config.IndexerConfig{
		DataDir:   dir,
		Tokenizer: tokenizer.DefaultOptions(),
	}, nil)
	require.NoError(t, err)
	return e
}

func TestRebuild_SavesAndAnnounces(t *testing.T) {
	dir := t.TempDir()
	src := &sliceSource{records: corpus}
	pub := &capture{}
	rb := NewRebuilder(engineAt(t, dir), src, pub)

	event, err := rb.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, event.Documents)
	assert.FileExists(t, event.Path)
	require.Len(t, pub.events, 1)
	assert.Equal(t, *event, pub.events[0].Value)
}

func TestRebuild_SourceError(t *testing.T) {
	rb := NewRebuilder(engineAt(t, t.TempDir()), &sliceSource{err: errors.New("db down")}, nil)
	_, err := rb.Rebuild(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestHandleCorpusUpdate_SkipsCoveredEvents(t *testing.T) {
	src := &sliceSource{records: corpus}
	rb := NewRebuilder(engineAt(t, t.TempDir()), src, nil)
	handle := HandleCorpusUpdate(rb)

	stale, _ := json.Marshal(ingestion.CorpusEvent{Type: ingestion.EventCorpusUpdated, IngestedAt: time.Now().Add(-time.Hour)})
	fresh, _ := json.Marshal(ingestion.CorpusEvent{Type: ingestion.EventCorpusUpdated, IngestedAt: time.Now().Add(time.Hour)})

	require.NoError(t, handle(context.Background(), nil, fresh))
	assert.Equal(t, 1, src.loads)
	require.NoError(t, handle(context.Background(), nil, stale))
	assert.Equal(t, 1, src.loads)
	require.NoError(t, handle(context.Background(), nil, []byte(`{"type":"search"}`)))
	assert.Equal(t, 1, src.loads)
}

func TestHandleIndexBuilt_Reloads(t *testing.T) {
	dir := t.TempDir()
	rb := NewRebuilder(engineAt(t, dir), &sliceSource{records: corpus}, nil)
	event, err := rb.Rebuild(context.Background())
	require.NoError(t, err)

	searcher := engineAt(t, dir)
	inv := &countingInvalidator{}
	handle := HandleIndexBuilt(searcher, inv)
	value, _ := json.Marshal(event)

	require.NoError(t, handle(context.Background(), nil, value))
	assert.Equal(t, event.Fingerprint, searcher.Fingerprint())
	assert.Equal(t, 1, inv.calls)

	require.NoError(t, handle(context.Background(), nil, value))
	assert.Equal(t, 1, inv.calls, "same fingerprint is not reloaded")

	hits, err := searcher.RunScored("parsing")
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestHandleIndexBuilt_MissingSnapshot(t *testing.T) {
	handle := HandleIndexBuilt(engineAt(t, t.TempDir()), nil)
	value, _ := json.Marshal(analytics.IndexEvent{Type: analytics.EventIndexBuilt, Fingerprint: "abc"})
	assert.Error(t, handle(context.Background(), nil, value))
}
