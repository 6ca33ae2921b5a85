// Package worker processes one document job end to end: it claims the job in
// the idempotency ledger, fetches the document, generates its embedding,
// upserts the vector, and records the result. Every failure is classified
// into a retryable or permanent Outcome; nothing else escapes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/ledger"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/tracing"
)

// Step names, used for spans, step-duration metrics and outcome reasons.
const (
	stepBegin    = "ledger_begin"
	stepFetch    = "fetch"
	stepEmbed    = "embed"
	stepUpsert   = "index_upsert"
	stepComplete = "ledger_complete"
	stepFail     = "ledger_fail"
)

// Fetcher returns the bytes behind a source reference.
type Fetcher interface {
	Fetch(ctx context.Context, sourceRef string) ([]byte, error)
}

// Indexer writes one record to the vector index.
type Indexer interface {
	Upsert(ctx context.Context, rec ingestion.IndexRecord) error
}

type Config struct {
	MaxAttempts int
	StepTimeout time.Duration
}

type Worker struct {
	ledger   ledger.Ledger
	fetcher  Fetcher
	embedder embedding.Generator
	index    Indexer
	cfg      Config
	metrics  *metrics.Metrics
	tracer   *tracing.Tracer
	logger   *slog.Logger
}

// New creates a Worker. m and tracer may be nil.
func New(l ledger.Ledger, f Fetcher, g embedding.Generator, idx Indexer, cfg Config, m *metrics.Metrics, tracer *tracing.Tracer) *Worker {
	return &Worker{
		ledger:   l,
		fetcher:  f,
		embedder: g,
		index:    idx,
		cfg:      cfg,
		metrics:  m,
		tracer:   tracer,
		logger:   slog.Default().With("component", "worker"),
	}
}

// ProcessJob runs the job to a terminal Outcome. The job is processed at
// most once to completion regardless of how often it is delivered.
func (w *Worker) ProcessJob(ctx context.Context, job ingestion.DocumentJob) ingestion.Outcome {
	ctx = logger.WithJobID(ctx, job.ID)
	ctx, span := w.tracer.Start(ctx, "process_job", job.ID)
	span.SetAttr("type", string(job.Type))

	w.metrics.JobStarted()
	defer w.metrics.JobFinished()
	start := time.Now()

	outcome := w.process(ctx, job)

	span.SetAttr("outcome", outcome.Kind.String())
	span.SetAttr("reason", outcome.Reason)
	if outcome.Err != nil {
		span.EndWithError(outcome.Err)
	}
	w.tracer.Finish(span)
	w.metrics.JobProcessed(outcome.Kind.String())

	log := logger.FromContext(ctx).With(
		"outcome", outcome.Kind.String(),
		"reason", outcome.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	switch outcome.Kind {
	case ingestion.Success:
		log.Info("job processed")
	case ingestion.Retryable:
		log.Warn("job will be retried", "error", outcome.Err)
	default:
		log.Error("job failed permanently", "error", outcome.Err)
	}
	return outcome
}

func (w *Worker) process(ctx context.Context, job ingestion.DocumentJob) ingestion.Outcome {
	type begin struct {
		result ledger.BeginResult
		entry  ledger.Entry
	}
	b, err := runStep(ctx, w, stepBegin, func(ctx context.Context) (begin, error) {
		result, entry, err := w.ledger.TryBegin(ctx, job.ID)
		return begin{result, entry}, err
	})
	if err != nil {
		return ingestion.RetryableOutcome("ledger_unavailable", err)
	}
	w.metrics.LedgerResult(b.result.String())

	switch b.result {
	case ledger.AlreadyCompleted:
		return ingestion.Succeeded("already_completed")
	case ledger.AlreadyInProgress:
		return ingestion.RetryableOutcome("in_progress_elsewhere", nil)
	case ledger.Exhausted:
		return ingestion.PermanentOutcome("attempts_exhausted",
			fmt.Errorf("document %s failed %d attempts", job.ID, b.entry.AttemptCount))
	}
	attempt := b.entry.AttemptCount
	logger.FromContext(ctx).Debug("job admitted", "attempt", attempt)

	data, err := runStep(ctx, w, stepFetch, func(ctx context.Context) ([]byte, error) {
		return w.fetcher.Fetch(ctx, job.SourceRef)
	})
	if err != nil {
		return w.fail(ctx, job, attempt, stepFetch, err)
	}

	vec, err := runStep(ctx, w, stepEmbed, func(ctx context.Context) (ingestion.Vector, error) {
		return w.embedder.Generate(ctx, job.Type, data)
	})
	if err != nil {
		return w.fail(ctx, job, attempt, stepEmbed, err)
	}

	rec := ingestion.NewIndexRecord(job, vec)
	if _, err := runStep(ctx, w, stepUpsert, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.index.Upsert(ctx, rec)
	}); err != nil {
		return w.fail(ctx, job, attempt, stepUpsert, err)
	}

	if _, err := runStep(ctx, w, stepComplete, func(ctx context.Context) (ledger.Entry, error) {
		return w.ledger.MarkCompleted(ctx, job.ID, attempt)
	}); err != nil {
		if errors.Is(err, apperrors.ErrLeaseLost) {
			// The vector is written; the newer attempt's delivery decides the entry.
			logger.FromContext(ctx).Warn("lease reclaimed before completion", "attempt", attempt, "error", err)
			return ingestion.Succeeded("superseded")
		}
		if errors.Is(err, apperrors.ErrUnknownEntry) {
			logger.FromContext(ctx).Error("ledger entry vanished while job was in progress", "error", err)
			return ingestion.PermanentOutcome("ledger_entry_missing", err)
		}
		return w.fail(ctx, job, attempt, stepComplete, err)
	}
	return ingestion.Succeeded("embedded")
}

// fail records a failed attempt and returns the Outcome for err. Retryable
// failures become permanent once the ledger shows the attempt ceiling.
func (w *Worker) fail(ctx context.Context, job ingestion.DocumentJob, attempt int, step string, err error) ingestion.Outcome {
	kind := ingestion.Retryable
	if apperrors.IsPermanent(err) {
		kind = ingestion.Permanent
	}

	entry, markErr := runStep(ctx, w, stepFail, func(ctx context.Context) (ledger.Entry, error) {
		return w.ledger.MarkFailed(ctx, job.ID, attempt)
	})
	switch {
	case markErr == nil:
		if kind == ingestion.Retryable && entry.AttemptCount >= w.cfg.MaxAttempts {
			return ingestion.PermanentOutcome(step,
				fmt.Errorf("giving up after %d attempts: %w", entry.AttemptCount, err))
		}
	case errors.Is(markErr, apperrors.ErrLeaseLost):
		logger.FromContext(ctx).Warn("lease reclaimed before failure was recorded", "step", step, "attempt", attempt)
	case errors.Is(markErr, apperrors.ErrUnknownEntry):
		logger.FromContext(ctx).Error("ledger entry vanished while recording failure", "step", step, "error", markErr)
	default:
		// The entry stays in_progress and is reclaimed after the lease.
		logger.FromContext(ctx).Warn("could not record failed attempt", "step", step, "error", markErr)
	}
	return ingestion.Outcome{Kind: kind, Reason: step, Err: err}
}

// runStep runs fn under the step timeout inside a child span and records
// its duration.
func runStep[T any](ctx context.Context, w *Worker, step string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.StartChildSpan(ctx, step)
	start := time.Now()
	v, err := resilience.Call(ctx, w.cfg.StepTimeout, step, fn)
	w.metrics.ObserveStep(step, time.Since(start))
	span.EndWithError(err)
	return v, err
}
