package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/openspot/exchange/internal/exchange"

	"github.com/segmentio/kafka-go"
)

const (
	// Per-message retries before a failed task is pushed back onto the
	// topic instead of blocking the partition.
	taskAttempts = 3
	taskBackoff  = 100 * time.Millisecond
)

// matchTask is the wire payload carried on the match topic.
type matchTask struct {
	OrderID int `json:"order_id"`
}

// KafkaProducer publishes matching attempts to the match topic.
type KafkaProducer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaProducer creates a producer for the match topic.
func NewKafkaProducer(brokers []string, topic string, logger *slog.Logger) *KafkaProducer {
	if logger == nil {
		logger = slog.Default()
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &KafkaProducer{writer: writer, logger: logger}
}

// EnqueueMatch publishes a matching attempt for the order. Keyed by order
// id so replays for one order stay in-order within a partition.
func (p *KafkaProducer) EnqueueMatch(ctx context.Context, orderID int) error {
	value, err := json.Marshal(matchTask{OrderID: orderID})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(orderID)),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish match task: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer runs a pool of workers consuming the match topic and
// invoking the matching engine. Offsets are committed only after an
// attempt completes. Offset commits are cumulative, so a worker never
// fetches past a failed task: the attempt is retried in place and, when
// retries run out, re-published to the back of the topic before the
// offset advances (at-least-once).
type KafkaConsumer struct {
	brokers  []string
	topic    string
	groupID  string
	workers  int
	matcher  Matcher
	requeuer exchange.MatchDispatcher
	logger   *slog.Logger

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
}

// NewKafkaConsumer creates a consumer pool for the match topic. requeuer
// (normally the producer on the same topic) takes a task whose retries
// ran out; without one the worker halts on the failed offset instead.
func NewKafkaConsumer(brokers []string, topic, groupID string, workers int, matcher Matcher, requeuer exchange.MatchDispatcher, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &KafkaConsumer{
		brokers:  brokers,
		topic:    topic,
		groupID:  groupID,
		workers:  workers,
		matcher:  matcher,
		requeuer: requeuer,
		logger:   logger,
	}
}

// Start launches the worker pool. Each worker owns its reader; the shared
// consumer group spreads partitions across them.
func (c *KafkaConsumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.workers; i++ {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.brokers,
			Topic:    c.topic,
			GroupID:  c.groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
		c.readers = append(c.readers, reader)
		c.wg.Add(1)
		go c.run(ctx, reader)
	}
}

func (c *KafkaConsumer) run(ctx context.Context, reader *kafka.Reader) {
	defer c.wg.Done()
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("failed to fetch match task", "error", err)
			return
		}

		var task matchTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			// Malformed payload; redelivery cannot fix it, drop it.
			c.logger.Error("malformed match task", "error", err)
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		if !c.processTask(ctx, task.OrderID) {
			// Committing a later offset would mark this task consumed
			// too. Stop fetching so the group redelivers from here.
			c.logger.Error("halting worker on unrecovered match task",
				"order_id", task.OrderID)
			return
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit match task",
				"order_id", task.OrderID, "error", err)
		}
	}
}

// processTask runs the matching attempt, retrying infrastructure
// failures in place. True means the caller may commit the task's offset:
// the attempt finished, or the task was re-published to the back of the
// topic. False means the offset must stay where it is.
func (c *KafkaConsumer) processTask(ctx context.Context, orderID int) bool {
	for attempt := 1; attempt <= taskAttempts; attempt++ {
		outcome, err := c.matcher.TryMatch(ctx, orderID)
		if err == nil {
			c.logger.Info("match attempt finished",
				"order_id", orderID, "result", outcome.Result.String())
			return true
		}
		c.logger.Error("match attempt failed",
			"order_id", orderID, "attempt", attempt, "error", err)
		if attempt == taskAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * taskBackoff):
		}
	}
	if c.requeuer == nil {
		return false
	}
	if err := c.requeuer.EnqueueMatch(ctx, orderID); err != nil {
		c.logger.Error("failed to re-queue match task",
			"order_id", orderID, "error", err)
		return false
	}
	c.logger.Warn("match task re-queued after failed attempts", "order_id", orderID)
	return true
}

// Close shuts down every reader and waits for the workers.
func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	readers := c.readers
	c.mu.Unlock()
	var firstErr error
	for _, r := range readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.wg.Wait()
	return firstErr
}
