// Package ack maps a job's Outcome onto the broker settlement: success is
// acknowledged, retryable failures are requeued, and permanent failures are
// rejected without requeue so the broker dead-letters them.
package ack

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/queue"
)

type Coordinator struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewCoordinator(m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		metrics: m,
		logger:  slog.Default().With("component", "ack-coordinator"),
	}
}

// Handle returns the Decision for outcome. jobID may be empty when the
// payload could not be decoded.
func (c *Coordinator) Handle(ctx context.Context, jobID string, outcome ingestion.Outcome) queue.Decision {
	var decision queue.Decision
	switch outcome.Kind {
	case ingestion.Success:
		decision = queue.Ack()
	case ingestion.Retryable:
		decision = queue.Nack(true)
	default:
		decision = queue.Nack(false)
		log := logger.FromContext(ctx)
		if jobID != "" && logger.JobIDFromContext(ctx) == "" {
			log = log.With("job_id", jobID)
		}
		log.Error("dead-lettering job",
			"reason", outcome.Reason,
			"error", outcome.Err,
		)
	}
	c.metrics.Ack(decision.String())
	c.logger.Debug("settling delivery", "job_id", jobID, "decision", decision.String())
	return decision
}
