package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/resilience"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
	last  string
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.calls++
	f.last = text
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestGenerateReturnsVector(t *testing.T) {
	fake := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	svc := NewService(fake, Options{Dimension: 3})

	vec, err := svc.Generate(context.Background(), ingestion.TypeText, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, ingestion.Vector{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "hello", fake.last)
}

func TestGenerateDimensionMismatchIsPermanent(t *testing.T) {
	svc := NewService(&fakeEmbedder{vec: []float32{1, 2}}, Options{Dimension: 3})

	_, err := svc.Generate(context.Background(), ingestion.TypeText, []byte("hello"))
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
	assert.True(t, apperrors.IsPermanent(err))
}

func TestGenerateEmptyVectorIsTransient(t *testing.T) {
	svc := NewService(&fakeEmbedder{}, Options{Dimension: 3})

	_, err := svc.Generate(context.Background(), ingestion.TypeText, []byte("hello"))
	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	assert.False(t, apperrors.IsPermanent(err))
}

func TestGenerateContentInvalidSkipsModel(t *testing.T) {
	fake := &fakeEmbedder{vec: []float32{1}}
	svc := NewService(fake, Options{Dimension: 1})

	_, err := svc.Generate(context.Background(), ingestion.TypeImage, []byte{0x89, 'P', 'N', 'G'})
	assert.ErrorIs(t, err, apperrors.ErrContentInvalid)
	assert.Zero(t, fake.calls)
}

func TestGenerateTruncatesInput(t *testing.T) {
	fake := &fakeEmbedder{vec: []float32{1}}
	svc := NewService(fake, Options{Dimension: 1, MaxInputChars: 5})

	_, err := svc.Generate(context.Background(), ingestion.TypeText, []byte("abcdefghij"))
	require.NoError(t, err)
	assert.Equal(t, "abcde", fake.last)
}

func TestGenerateBreakerOpensOnModelFailures(t *testing.T) {
	fake := &fakeEmbedder{err: errors.New("503 service unavailable")}
	breaker := resilience.NewCircuitBreaker("embedding", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	svc := NewService(fake, Options{Dimension: 1, Breaker: breaker})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Generate(ctx, ingestion.TypeText, []byte("hello"))
		assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	}
	assert.Equal(t, resilience.StateOpen, breaker.GetState())

	_, err := svc.Generate(ctx, ingestion.TypeText, []byte("hello"))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	assert.False(t, apperrors.IsPermanent(err))
	assert.Equal(t, 2, fake.calls)
}

func TestGeneratePermanentModelErrorDoesNotTripBreaker(t *testing.T) {
	fake := &fakeEmbedder{err: apperrors.New(apperrors.ErrContentInvalid, "input rejected")}
	breaker := resilience.NewCircuitBreaker("embedding", resilience.CircuitBreakerConfig{FailureThreshold: 1})
	svc := NewService(fake, Options{Dimension: 1, Breaker: breaker})

	_, err := svc.Generate(context.Background(), ingestion.TypeText, []byte("hello"))
	assert.ErrorIs(t, err, apperrors.ErrContentInvalid)
	assert.Equal(t, resilience.StateClosed, breaker.GetState())
}

func TestHashEmbedder(t *testing.T) {
	h := NewHash(64)
	ctx := context.Background()

	a, err := h.EmbedText(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := h.EmbedText(ctx, "The quick, brown fox!")
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.Equal(t, a, b)

	var norm float32
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	zero, err := h.EmbedText(ctx, "!!!")
	require.NoError(t, err)
	assert.Len(t, zero, 64)
}

type fakeLangChain struct {
	docs [][]float32
	err  error
}

func (f fakeLangChain) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return f.docs, f.err
}

func (f fakeLangChain) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("not used")
}

func TestLangChainEmbedText(t *testing.T) {
	l := newLangChain(fakeLangChain{docs: [][]float32{{1, 2}}})
	vec, err := l.EmbedText(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)

	l = newLangChain(fakeLangChain{err: errors.New("boom")})
	_, err = l.EmbedText(context.Background(), "hi")
	assert.EqualError(t, err, "boom")
}

type fakeEino struct {
	out [][]float64
}

func (f fakeEino) EmbedStrings(context.Context, []string, ...einoEmbedding.Option) ([][]float64, error) {
	return f.out, nil
}

func TestEinoConvertsToFloat32(t *testing.T) {
	e := &Eino{embedder: fakeEino{out: [][]float64{{0.5, -0.25}}}}
	vec, err := e.EmbedText(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, vec)

	e = &Eino{embedder: fakeEino{}}
	vec, err = e.EmbedText(context.Background(), "hi")
	require.NoError(t, err)
	assert.Empty(t, vec)
}
