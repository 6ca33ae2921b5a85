package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/postgres"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PGVector keeps records in a Postgres table with a pgvector column and
// ranks them with the cosine distance operator <=>. The table is created by
// the embedded migrations.
type PGVector struct {
	db    *postgres.Client
	table string
}

func NewPGVector(db *postgres.Client, table string) *PGVector {
	return &PGVector{db: db, table: pq.QuoteIdentifier(table)}
}

func (p *PGVector) Upsert(ctx context.Context, rec ingestion.IndexRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	docType, _ := rec.Metadata[ingestion.MetaType].(string)
	source, _ := rec.Metadata[ingestion.MetaSourceRef].(string)
	_, err = p.db.DB.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, embedding, doc_type, source, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			doc_type = EXCLUDED.doc_type,
			source = EXCLUDED.source,
			metadata = EXCLUDED.metadata,
			updated_at = now()`, p.table),
		rec.ID, pgvector.NewVector(rec.Vector), docType, source, meta,
	)
	if err != nil {
		return fmt.Errorf("upserting into %s: %w", p.table, err)
	}
	return nil
}

func (p *PGVector) Query(ctx context.Context, vec ingestion.Vector, topK int) ([]Match, error) {
	rows, err := p.db.DB.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, p.table),
		pgvector.NewVector(vec), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", p.table, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m    Match
			meta []byte
		)
		if err := rows.Scan(&m.ID, &meta, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for %s: %w", m.ID, err)
			}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PGVector) Delete(ctx context.Context, id string) error {
	_, err := p.db.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, p.table), id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", p.table, err)
	}
	return nil
}
