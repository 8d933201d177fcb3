package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/metrics"
)

const maxBatch = 100

// Collector buffers events and publishes them off the request path. Events
// are dropped, not blocked on, when the buffer is full.
type Collector struct {
	publisher kafka.Publisher
	metrics   *metrics.Metrics
	eventCh   chan kafka.Event
	logger    *slog.Logger
	done      chan struct{}
}

// NewCollector buffers up to bufferSize events. m may be nil.
func NewCollector(publisher kafka.Publisher, m *metrics.Metrics, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		metrics:   m,
		eventCh:   make(chan kafka.Event, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start runs the publish loop until ctx ends or Close is called. Whatever
// is buffered when ctx ends is flushed with a short deadline.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, c.batch(event))
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.drainRemaining(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues a search event.
func (c *Collector) Track(event SearchEvent) {
	select {
	case c.eventCh <- kafka.Event{Key: event.Query, Value: event}:
	default:
		c.count(event.Type, "dropped")
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the loop to publish what is
// left. Call it at most once, after Start.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

// batch gathers first plus whatever else is already buffered, up to
// maxBatch events.
func (c *Collector) batch(first kafka.Event) []kafka.Event {
	events := []kafka.Event{first}
	for len(events) < maxBatch {
		select {
		case e, ok := <-c.eventCh:
			if !ok {
				return events
			}
			events = append(events, e)
		default:
			return events
		}
	}
	return events
}

func (c *Collector) publish(ctx context.Context, events []kafka.Event) {
	if err := c.publisher.PublishBatch(ctx, events); err != nil {
		c.logger.Error("failed to publish analytics events", "count", len(events), "error", err)
		for _, e := range events {
			c.count(typeOf(e), "dropped")
		}
		return
	}
	for _, e := range events {
		c.count(typeOf(e), "published")
	}
}

func (c *Collector) drainRemaining(ctx context.Context) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(ctx, c.batch(event))
		default:
			return
		}
	}
}

func (c *Collector) count(t EventType, result string) {
	if c.metrics != nil {
		c.metrics.EventsPublished.WithLabelValues(string(t), result).Inc()
	}
}

func typeOf(e kafka.Event) EventType {
	if se, ok := e.Value.(SearchEvent); ok {
		return se.Type
	}
	return ""
}
