//go:build integration

package vectorindex_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/testutil/pgtest"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGVectorRoundTrip(t *testing.T) {
	idx := vectorindex.NewClient(vectorindex.NewPGVector(pgtest.Open(t), "document_vectors"), 3, nil)
	ctx := context.Background()
	prefix := fmt.Sprintf("it-%d", time.Now().UnixNano())

	near := ingestion.NewIndexRecord(ingestion.DocumentJob{
		ID: prefix + "-near", OwnerID: "u1", Type: ingestion.TypeText, SourceRef: "near.txt",
	}, ingestion.Vector{1, 0, 0})
	far := ingestion.NewIndexRecord(ingestion.DocumentJob{
		ID: prefix + "-far", OwnerID: "u1", Type: ingestion.TypeText, SourceRef: "far.txt",
	}, ingestion.Vector{0, 1, 0})
	require.NoError(t, idx.Upsert(ctx, near))
	require.NoError(t, idx.Upsert(ctx, far))
	require.NoError(t, idx.Upsert(ctx, near))
	t.Cleanup(func() {
		_ = idx.Delete(ctx, near.ID)
		_ = idx.Delete(ctx, far.ID)
	})

	matches, err := idx.Query(ctx, ingestion.Vector{0.9, 0.1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, near.ID, matches[0].ID)

	require.NoError(t, idx.Delete(ctx, near.ID))
	require.NoError(t, idx.Delete(ctx, near.ID))
}
