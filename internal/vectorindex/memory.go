package vectorindex

import (
	"context"
	"math"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
)

// Memory is an exact cosine-similarity index held in a map.
type Memory struct {
	mu      sync.RWMutex
	records map[string]ingestion.IndexRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]ingestion.IndexRecord)}
}

func (m *Memory) Upsert(ctx context.Context, rec ingestion.IndexRecord) error {
	vec := make(ingestion.Vector, len(rec.Vector))
	copy(vec, rec.Vector)
	meta := make(map[string]any, len(rec.Metadata))
	for k, v := range rec.Metadata {
		meta[k] = v
	}
	m.mu.Lock()
	m.records[rec.ID] = ingestion.IndexRecord{ID: rec.ID, Vector: vec, Metadata: meta}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Query(ctx context.Context, vec ingestion.Vector, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]Match, 0, len(m.records))
	for id, rec := range m.records {
		matches = append(matches, Match{
			ID:       id,
			Score:    Cosine(vec, rec.Vector),
			Metadata: rec.Metadata,
		})
	}
	return matches, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	return nil
}

// Get returns the stored record for id.
func (m *Memory) Get(id string) (ingestion.IndexRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}

// Len is the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b ingestion.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
