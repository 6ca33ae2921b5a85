// Package rabbitmq wraps amqp091-go for the embedding queue: a durable work
// queue whose rejected messages dead-letter into a companion queue, manual
// acknowledgements, and bounded prefetch.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client owns one AMQP connection. Channels are opened per consumer so each
// worker instance has its own prefetch window.
type Client struct {
	conn   *amqp.Connection
	logger *slog.Logger
}

// Dial connects to the broker at url.
func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	return &Client{
		conn:   conn,
		logger: slog.Default().With("component", "rabbitmq"),
	}, nil
}

// DeclareTopology declares the dead-letter queue and the work queue routed
// to it. Both are durable.
func (c *Client) DeclareTopology(queue, deadLetterQueue string) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(deadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", deadLetterQueue, err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": deadLetterQueue,
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declaring queue %s: %w", queue, err)
	}
	c.logger.Info("queues declared", "queue", queue, "dead_letter_queue", deadLetterQueue)
	return nil
}

// Publish sends a persistent JSON message to queue through the default
// exchange.
func (c *Client) Publish(ctx context.Context, queue string, body []byte) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", queue, err)
	}
	return nil
}

// IsClosed reports whether the connection has gone away.
func (c *Client) IsClosed() bool {
	return c.conn.IsClosed()
}

// Close closes the connection and every channel opened on it.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("closing rabbitmq connection: %w", err)
	}
	return nil
}
