package ack

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHandleMapsOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		outcome ingestion.Outcome
		want    queue.Decision
	}{
		{"success", ingestion.Succeeded("embedded"), queue.Ack()},
		{"duplicate", ingestion.Succeeded("already_completed"), queue.Ack()},
		{"retryable", ingestion.RetryableOutcome("index_upsert", errors.New("reset")), queue.Nack(true)},
		{"permanent", ingestion.PermanentOutcome("fetch", errors.New("not found")), queue.Nack(false)},
	}
	c := NewCoordinator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Handle(context.Background(), "doc1", tt.outcome))
		})
	}
}

func TestHandleCountsDecisions(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := NewCoordinator(m)
	ctx := context.Background()

	c.Handle(ctx, "a", ingestion.Succeeded("embedded"))
	c.Handle(ctx, "b", ingestion.RetryableOutcome("fetch", nil))
	c.Handle(ctx, "c", ingestion.PermanentOutcome("fetch", nil))
	c.Handle(ctx, "d", ingestion.PermanentOutcome("embed", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AcksTotal.WithLabelValues("ack")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AcksTotal.WithLabelValues("nack_requeue")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AcksTotal.WithLabelValues("nack_dead_letter")))
}

func TestPermanentOutcomeLogsError(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logger.New(&buf, "info", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	NewCoordinator(nil).Handle(context.Background(), "doc9", ingestion.PermanentOutcome("fetch", errors.New("no such key")))

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"job_id":"doc9"`)
	assert.Contains(t, out, "no such key")
}
