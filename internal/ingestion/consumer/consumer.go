// Package consumer connects a broker subscription to the ingestion pipeline:
// each delivery is decoded, processed by the worker and settled by the ack
// coordinator.
package consumer

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/ack"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/codec"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/queue"
)

// Source is a broker subscription, such as rabbitmq.Consumer or
// kafka.Consumer.
type Source interface {
	Start(ctx context.Context, handler queue.Handler) error
}

// Processor runs one decoded job to an Outcome.
type Processor interface {
	ProcessJob(ctx context.Context, job ingestion.DocumentJob) ingestion.Outcome
}

type Consumer struct {
	source      Source
	processor   Processor
	coordinator *ack.Coordinator
	logger      *slog.Logger
}

func New(source Source, processor Processor, coordinator *ack.Coordinator) *Consumer {
	return &Consumer{
		source:      source,
		processor:   processor,
		coordinator: coordinator,
		logger:      slog.Default().With("component", "job-consumer"),
	}
}

// Run blocks until ctx is cancelled or the source fails.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("job consumer starting")
	return c.source.Start(ctx, c.Handle)
}

// Handle is the queue.Handler for one delivery. Undecodable payloads are
// dead-lettered without touching the ledger.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) queue.Decision {
	job, err := codec.Decode(msg.Body)
	if err != nil {
		c.logger.Warn("rejecting malformed payload",
			"key", string(msg.Key),
			"size", len(msg.Body),
			"error", err,
		)
		return c.coordinator.Handle(ctx, "", ingestion.PermanentOutcome("malformed_payload", err))
	}

	ctx = logger.WithJobID(ctx, job.ID)
	if msg.Redelivered {
		logger.FromContext(ctx).Debug("processing redelivered job")
	}
	outcome := c.processor.ProcessJob(ctx, job)
	return c.coordinator.Handle(ctx, job.ID, outcome)
}
