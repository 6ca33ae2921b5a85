// Package embedding turns fetched document bytes into a fixed-dimension
// vector. A Service extracts text per document type, truncates it, and asks
// a TextEmbedder (an OpenAI-compatible model reached through langchaingo or
// eino, or the local hash embedder) for the vector, guarding the model with
// a circuit breaker.
package embedding

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/embedding/extract"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/resilience"
)

// Generator produces the embedding for one document.
type Generator interface {
	Generate(ctx context.Context, docType ingestion.DocumentType, content []byte) (ingestion.Vector, error)
}

// TextEmbedder is a model that embeds a single piece of text.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	Dimension     int
	MaxInputChars int
	Breaker       *resilience.CircuitBreaker
	Extractor     *extract.Registry
}

type Service struct {
	embedder  TextEmbedder
	extractor *extract.Registry
	breaker   *resilience.CircuitBreaker
	dimension int
	maxChars  int
	logger    *slog.Logger
}

func NewService(embedder TextEmbedder, opts Options) *Service {
	if opts.Extractor == nil {
		opts.Extractor = extract.Default()
	}
	return &Service{
		embedder:  embedder,
		extractor: opts.Extractor,
		breaker:   opts.Breaker,
		dimension: opts.Dimension,
		maxChars:  opts.MaxInputChars,
		logger:    slog.Default().With("component", "embedding"),
	}
}

// Generate returns ErrContentInvalid when the document holds no embeddable
// text, ErrDimensionMismatch when the model's vector has the wrong length,
// and ErrEmbedding for model failures, including an open circuit.
func (s *Service) Generate(ctx context.Context, docType ingestion.DocumentType, content []byte) (ingestion.Vector, error) {
	text, err := s.extractor.Extract(docType, content)
	if err != nil {
		return nil, err
	}
	text, cut := extract.Truncate(text, s.maxChars)
	if cut {
		logger.FromContext(ctx).Debug("embedding input truncated", "max_chars", s.maxChars, "type", docType)
	}

	var vec []float32
	call := func() error {
		v, err := s.embedder.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	}
	if s.breaker != nil {
		err = s.breaker.Execute(call, apperrors.IsPermanent)
	} else {
		err = call()
	}
	if err != nil {
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			return nil, apperrors.Wrap(apperrors.ErrEmbedding, err, "embedding model unavailable")
		case apperrors.IsPermanent(err):
			return nil, err
		default:
			return nil, apperrors.Wrap(apperrors.ErrEmbedding, err, "generating embedding")
		}
	}

	if len(vec) == 0 {
		return nil, apperrors.New(apperrors.ErrEmbedding, "model returned an empty vector")
	}
	if s.dimension > 0 && len(vec) != s.dimension {
		return nil, apperrors.Newf(apperrors.ErrDimensionMismatch, "model returned %d dimensions, index expects %d", len(vec), s.dimension)
	}
	s.logger.Debug("embedding generated", "type", docType, "chars", len(text), "dim", len(vec))
	return ingestion.Vector(vec), nil
}
