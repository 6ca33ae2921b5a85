package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hash is a deterministic, model-free embedder for local runs and tests.
// Each lower-cased token is hashed into one of dim buckets with a signed
// weight and the result is L2-normalized, so documents sharing vocabulary
// score higher under cosine similarity.
type Hash struct {
	dim int
}

func NewHash(dim int) *Hash {
	return &Hash{dim: dim}
}

func (h *Hash) EmbedText(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
