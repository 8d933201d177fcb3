package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/resilience"
)

// MessageHandler processes one message value. Returning an error wrapped
// with resilience.Permanent skips the retries.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// ConsumerStats counts messages since the consumer started.
type ConsumerStats struct {
	Processed int64
	Dropped   int64
}

type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger

	processed atomic.Int64
	dropped   atomic.Int64
}

// NewConsumer reads topic as group, or cfg.ConsumerGroup when group is
// empty. Every searcher uses its own group so each one sees every
// index-complete event.
func NewConsumer(cfg config.KafkaConfig, topic, group string, handler MessageHandler) *Consumer {
	if group == "" {
		group = cfg.ConsumerGroup
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     group,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.LastOffset,
		}),
		handler: handler,
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", group),
	}
}

// Start consumes until ctx ends. A message whose handler still fails after
// the retries is logged and committed so one bad event cannot stall the
// partition.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.logger.Info("consumer stopped", "processed", c.processed.Load(), "dropped", c.dropped.Load())

	fetchBackoff := time.Duration(0)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			return c.reader.Close()
		}
		if err != nil {
			fetchBackoff = min(max(2*fetchBackoff, 100*time.Millisecond), 5*time.Second)
			c.logger.Error("fetch failed", "error", err, "backoff", fetchBackoff)
			select {
			case <-time.After(fetchBackoff):
				continue
			case <-ctx.Done():
				return c.reader.Close()
			}
		}
		fetchBackoff = 0

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return c.reader.Close()
			}
			c.dropped.Add(1)
			c.logger.Error("dropping message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"type", EventType(msg.Value),
				"error", err,
			)
		} else {
			c.processed.Add(1)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	c.logger.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"bytes", len(msg.Value),
	)
	return resilience.Retry(ctx, "handle message", c.retry, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{Processed: c.processed.Load(), Dropped: c.dropped.Load()}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// EventType reads the "type" field of a JSON event, or "" when there is
// none.
func EventType(value []byte) string {
	var probe struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(value, &probe) != nil {
		return ""
	}
	return probe.Type
}

// DecodeJSON unmarshals value into T. Malformed input is permanent: a
// retry would read the same bytes.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, resilience.Permanent(fmt.Errorf("decoding %T event: %w", out, err))
	}
	return out, nil
}
