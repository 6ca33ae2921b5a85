package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer reads from one queue on a dedicated channel.
type Consumer struct {
	ch       *amqp.Channel
	queue    string
	tag      string
	prefetch int
	logger   *slog.Logger
}

// NewConsumer opens a channel limited to prefetch unacknowledged deliveries.
func (c *Client) NewConsumer(queueName, tag string, prefetch int) (*Consumer, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("setting qos: %w", err)
	}
	return &Consumer{
		ch:       ch,
		queue:    queueName,
		tag:      tag,
		prefetch: prefetch,
		logger:   slog.Default().With("component", "rabbitmq-consumer", "queue", queueName, "consumer", tag),
	}, nil
}

// Start consumes deliveries until ctx is cancelled or the channel closes.
// Deliveries are handled one at a time, in order.
func (c *Consumer) Start(ctx context.Context, handler queue.Handler) error {
	deliveries, err := c.ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming from %s: %w", c.queue, err)
	}
	c.logger.Info("consumer started", "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			if err := c.ch.Cancel(c.tag, false); err != nil {
				c.logger.Warn("cancelling consumer", "error", err)
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", c.queue)
			}
			c.logger.Debug("message received",
				"delivery_tag", d.DeliveryTag,
				"redelivered", d.Redelivered,
				"value_size", len(d.Body),
			)
			decision := handler(context.WithoutCancel(ctx), toQueueMessage(d))
			if err := settle(d, decision); err != nil {
				c.logger.Error("failed to settle delivery",
					"delivery_tag", d.DeliveryTag,
					"decision", decision.String(),
					"error", err,
				)
			}
		}
	}
}

// Close closes the consumer's channel.
func (c *Consumer) Close() error {
	return c.ch.Close()
}

// acknowledger is the subset of amqp.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(d acknowledger, decision queue.Decision) error {
	if decision.Ack {
		return d.Ack(false)
	}
	return d.Nack(false, decision.Requeue)
}

func toQueueMessage(d amqp.Delivery) queue.Message {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		headers[k] = fmt.Sprint(v)
	}
	return queue.Message{
		Key:         []byte(d.MessageId),
		Body:        d.Body,
		Headers:     headers,
		Redelivered: d.Redelivered,
	}
}
