// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. Kafka has no per-message nack, so the consumer settles
// a rejected delivery by republishing it (requeue) or forwarding it to a
// dead-letter topic before committing the offset. Group commits are
// per-partition high-water marks, so a message that cannot be settled stops
// the consumer instead of being skipped.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/queue"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// HeaderDeliveryCount counts how many times a message was put back on the
// topic by this consumer.
const HeaderDeliveryCount = "x-delivery-count"

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type rawPublisher interface {
	PublishRaw(ctx context.Context, key, value []byte, headers []kafka.Header) error
	Close() error
}

// Consumer reads messages from a Kafka topic one at a time and settles each
// according to the handler's Decision.
type Consumer struct {
	reader      messageReader
	requeue     rawPublisher
	deadLetter  rawPublisher
	settleRetry resilience.RetryConfig
	logger      *slog.Logger
}

// NewConsumer creates a Consumer for the given topic. Requeued messages go
// back to the same topic; dead letters go to cfg.Topics.DeadLetter.
func NewConsumer(cfg config.KafkaConfig, topic string) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:     r,
		requeue:    NewProducer(cfg, topic),
		deadLetter: NewProducer(cfg, cfg.Topics.DeadLetter),
		settleRetry: resilience.RetryConfig{
			MaxAttempts:  6,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled. Only one message is in flight at a time. If a message still
// cannot be settled after retrying, Start returns the error with the offset
// uncommitted so the group redelivers it.
func (c *Consumer) Start(ctx context.Context, handler queue.Handler) error {
	c.logger.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)

		in := toQueueMessage(msg)
		decision := handler(context.WithoutCancel(ctx), in)
		err = resilience.Retry(ctx, "kafka settle", c.settleRetry, func() error {
			return c.settle(context.WithoutCancel(ctx), msg, decision)
		})
		if err != nil {
			c.logger.Error("failed to settle message, stopping consumer",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"decision", decision.String(),
				"error", err,
			)
			return fmt.Errorf("settling partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}
	}
}

func (c *Consumer) settle(ctx context.Context, msg kafka.Message, decision queue.Decision) error {
	switch {
	case decision.Ack:
	case decision.Requeue:
		if err := c.requeue.PublishRaw(ctx, msg.Key, msg.Value, bumpDeliveryCount(msg.Headers)); err != nil {
			return fmt.Errorf("requeueing message: %w", err)
		}
	default:
		if err := c.deadLetter.PublishRaw(ctx, msg.Key, msg.Value, msg.Headers); err != nil {
			return fmt.Errorf("dead-lettering message: %w", err)
		}
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("committing offset: %w", err)
	}
	return nil
}

// Close closes the reader and both producers.
func (c *Consumer) Close() error {
	err := c.reader.Close()
	if perr := c.requeue.Close(); err == nil {
		err = perr
	}
	if perr := c.deadLetter.Close(); err == nil {
		err = perr
	}
	return err
}

func toQueueMessage(msg kafka.Message) queue.Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	_, redelivered := headers[HeaderDeliveryCount]
	return queue.Message{
		Key:         msg.Key,
		Body:        msg.Value,
		Headers:     headers,
		Redelivered: redelivered,
	}
}

func bumpDeliveryCount(headers []kafka.Header) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+1)
	count := 0
	for _, h := range headers {
		if h.Key == HeaderDeliveryCount {
			count, _ = strconv.Atoi(string(h.Value))
			continue
		}
		out = append(out, h)
	}
	return append(out, kafka.Header{Key: HeaderDeliveryCount, Value: []byte(strconv.Itoa(count + 1))})
}
