package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChain embeds text through langchaingo's OpenAI client, which also
// speaks to local OpenAI-compatible servers such as Ollama.
type LangChain struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

func NewLangChain(cfg config.EmbeddingConfig) (*LangChain, error) {
	// Local servers ignore the token but the client requires one.
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return newLangChain(embedder), nil
}

func newLangChain(embedder embeddings.Embedder) *LangChain {
	return &LangChain{
		embedder: embedder,
		logger:   slog.Default().With("component", "langchain-embedder"),
	}
}

func (l *LangChain) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := l.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		l.logger.Warn("embedding request failed", "length", len(text), "error", err)
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return vectors[0], nil
}
