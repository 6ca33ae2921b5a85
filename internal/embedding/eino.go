package embedding

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/config"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
)

// Eino embeds text through an eino embedding component.
type Eino struct {
	embedder einoEmbedding.Embedder
}

func NewEino(ctx context.Context, cfg config.EmbeddingConfig) (*Eino, error) {
	embedder, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating eino embedder: %w", err)
	}
	return &Eino{embedder: embedder}, nil
}

func (e *Eino) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	out := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float32(v)
	}
	return out, nil
}
