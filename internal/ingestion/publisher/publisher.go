// Package publisher enqueues document jobs on the embedding queue. It is
// used by indexctl to submit work and to replay dead-lettered jobs. Jobs are
// validated against the wire format before they are sent.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/codec"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/rabbitmq"
)

// Transport sends one validated job.
type Transport interface {
	Send(ctx context.Context, job ingestion.DocumentJob) error
}

type Publisher struct {
	transport Transport
	logger    *slog.Logger
}

func New(t Transport) *Publisher {
	return &Publisher{
		transport: t,
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Publish validates job and sends it. Invalid jobs return a
// *codec.PayloadError and are not sent.
func (p *Publisher) Publish(ctx context.Context, job ingestion.DocumentJob) error {
	body, err := codec.Encode(job)
	if err != nil {
		return err
	}
	normalized, err := codec.Decode(body)
	if err != nil {
		return err
	}
	if err := p.transport.Send(ctx, normalized); err != nil {
		return fmt.Errorf("publishing job %s: %w", job.ID, err)
	}
	p.logger.Info("job published", "job_id", normalized.ID, "type", normalized.Type)
	return nil
}

// PublishAll sends jobs in order and stops at the first failure, returning
// how many were sent.
func (p *Publisher) PublishAll(ctx context.Context, jobs []ingestion.DocumentJob) (int, error) {
	for i, job := range jobs {
		if err := p.Publish(ctx, job); err != nil {
			return i, err
		}
	}
	return len(jobs), nil
}

type amqpTransport struct {
	client *rabbitmq.Client
	queue  string
}

// AMQP publishes persistent messages to queue through the default exchange.
func AMQP(client *rabbitmq.Client, queue string) Transport {
	return &amqpTransport{client: client, queue: queue}
}

func (t *amqpTransport) Send(ctx context.Context, job ingestion.DocumentJob) error {
	body, err := codec.Encode(job)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, t.queue, body)
}

type kafkaTransport struct {
	producer *kafka.Producer
}

// Kafka publishes keyed by job id so redeliveries of one document share a
// partition.
func Kafka(producer *kafka.Producer) Transport {
	return &kafkaTransport{producer: producer}
}

func (t *kafkaTransport) Send(ctx context.Context, job ingestion.DocumentJob) error {
	return t.producer.Publish(ctx, kafka.Event{Key: job.ID, Value: job})
}
