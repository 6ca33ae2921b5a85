// Package vectorindex is the typed client for the external vector index.
// Client validates dimensions, classifies backend failures as index write or
// query errors and orders query results; it never retries.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/metrics"
)

const defaultTopK = 10

// Match is one query hit. Score is cosine similarity, higher is closer.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Backend is a concrete index store.
type Backend interface {
	Upsert(ctx context.Context, rec ingestion.IndexRecord) error
	Query(ctx context.Context, vec ingestion.Vector, topK int) ([]Match, error)
	Delete(ctx context.Context, id string) error
}

// Provisioner is implemented by backends whose index must be created before
// first use. It is run out of band, never while processing jobs.
type Provisioner interface {
	Provision(ctx context.Context, dim int) error
}

type Client struct {
	backend Backend
	dim     int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewClient(backend Backend, dim int, m *metrics.Metrics) *Client {
	return &Client{
		backend: backend,
		dim:     dim,
		metrics: m,
		logger:  slog.Default().With("component", "vectorindex"),
	}
}

// Dimension is the fixed vector length this index accepts.
func (c *Client) Dimension() int { return c.dim }

// Upsert writes rec, replacing any record with the same id.
func (c *Client) Upsert(ctx context.Context, rec ingestion.IndexRecord) error {
	if rec.ID == "" {
		return apperrors.New(apperrors.ErrIndexWrite, "record id is empty")
	}
	if err := c.checkDim(rec.Vector); err != nil {
		return err
	}
	err := c.backend.Upsert(ctx, rec)
	c.metrics.IndexOp("upsert", err)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIndexWrite, err, "upserting %s", rec.ID)
	}
	c.logger.Debug("record upserted", "id", rec.ID)
	return nil
}

// Query returns up to topK records ordered by descending score.
func (c *Client) Query(ctx context.Context, vec ingestion.Vector, topK int) ([]Match, error) {
	if err := c.checkDim(vec); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	matches, err := c.backend.Query(ctx, vec, topK)
	c.metrics.IndexOp("query", err)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIndexQuery, err, "querying top %d", topK)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes the record for id. Deleting a missing id is not an error.
func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.backend.Delete(ctx, id)
	c.metrics.IndexOp("delete", err)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIndexWrite, err, "deleting %s", id)
	}
	return nil
}

// Provision creates the index if the backend needs one.
func (c *Client) Provision(ctx context.Context) error {
	p, ok := c.backend.(Provisioner)
	if !ok {
		c.logger.Info("backend needs no provisioning")
		return nil
	}
	if err := p.Provision(ctx, c.dim); err != nil {
		return fmt.Errorf("provisioning index: %w", err)
	}
	return nil
}

func (c *Client) checkDim(vec ingestion.Vector) error {
	if vec.Dim() != c.dim {
		return apperrors.Newf(apperrors.ErrDimensionMismatch, "got %d components, index expects %d", vec.Dim(), c.dim)
	}
	return nil
}
