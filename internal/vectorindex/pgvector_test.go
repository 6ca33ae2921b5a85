package vectorindex

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/postgres"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGVectorUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	backend := NewPGVector(postgres.FromDB(db), "document_vectors")

	mock.ExpectExec(`INSERT INTO "document_vectors" .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("doc1", sqlmock.AnyArg(), "text", "s3://b/doc1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := ingestion.NewIndexRecord(
		ingestion.DocumentJob{ID: "doc1", OwnerID: "u1", Type: ingestion.TypeText, SourceRef: "s3://b/doc1"},
		ingestion.Vector{0.5, 0.5},
	)
	require.NoError(t, backend.Upsert(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	backend := NewPGVector(postgres.FromDB(db), "document_vectors")

	mock.ExpectQuery(`SELECT id, metadata, 1 - \(embedding <=> \$1\) AS score`).
		WithArgs(sqlmock.AnyArg(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "metadata", "score"}).
			AddRow("doc1", []byte(`{"ownerId":"u1"}`), 0.97).
			AddRow("doc2", []byte(`{}`), 0.42))

	c := NewClient(backend, 2, nil)
	matches, err := c.Query(context.Background(), ingestion.Vector{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "doc1", matches[0].ID)
	assert.Equal(t, "u1", matches[0].Metadata["ownerId"])
	assert.InDelta(t, 0.42, matches[1].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM "document_vectors" WHERE id = \$1`).
		WithArgs("doc1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPGVector(postgres.FromDB(db), "document_vectors").Delete(context.Background(), "doc1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
