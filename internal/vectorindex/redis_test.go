package vectorindex

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	redisclient "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorEncodingRoundTrip(t *testing.T) {
	v := ingestion.Vector{0.25, -1.5, 3}
	blob := EncodeVector(v)
	assert.Len(t, blob, 12)

	got, err := DecodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestParseSearchReply(t *testing.T) {
	reply := []interface{}{
		int64(2),
		"vec:doc1", []interface{}{"score", "0.1", "metadata", `{"ownerId":"u1","type":"text"}`},
		"vec:doc2", []interface{}{"score", "0.4", "metadata", `{"ownerId":"u2"}`},
	}
	matches, err := parseSearchReply(reply, "vec:")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "doc1", matches[0].ID)
	assert.InDelta(t, 0.9, matches[0].Score, 1e-9)
	assert.Equal(t, "u1", matches[0].Metadata["ownerId"])
	assert.InDelta(t, 0.6, matches[1].Score, 1e-9)
}

func TestParseSearchReplyEmpty(t *testing.T) {
	matches, err := parseSearchReply([]interface{}{int64(0)}, "vec:")
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = parseSearchReply("OK", "vec:")
	assert.Error(t, err)
}

func TestRedisUpsertAndDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	defer rdb.Close()
	backend := NewRedis(redisclient.Wrap(rdb), "documents", "vec:")
	ctx := context.Background()

	rec := ingestion.NewIndexRecord(
		ingestion.DocumentJob{ID: "doc1", OwnerID: "u1", Type: ingestion.TypeText, SourceRef: "s3://b/doc1"},
		ingestion.Vector{1, 0, 0.5},
	)
	require.NoError(t, backend.Upsert(ctx, rec))

	assert.Equal(t, "u1", mr.HGet("vec:doc1", "owner_id"))
	assert.Equal(t, "text", mr.HGet("vec:doc1", "doc_type"))
	stored, err := DecodeVector([]byte(mr.HGet("vec:doc1", "vector")))
	require.NoError(t, err)
	assert.Equal(t, rec.Vector, stored)

	require.NoError(t, backend.Delete(ctx, "doc1"))
	assert.False(t, mr.Exists("vec:doc1"))
}
