package docstore

import (
	"context"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
)

// Memory is an ObjectStore backed by a map, keyed by bucket and key.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	m.objects[objectName(bucket, key)] = data
	m.mu.Unlock()
}

func (m *Memory) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[objectName(bucket, key)]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "%s", objectName(bucket, key))
	}
	return data, nil
}
