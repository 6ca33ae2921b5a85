package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local ledger. It serializes every call through one
// mutex, which is enough for several worker instances in one process.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	policy  Policy
	now     func() time.Time
}

func NewMemory(p Policy) *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		policy:  p,
		now:     time.Now,
	}
}

func (m *Memory) TryBegin(ctx context.Context, documentID string) (BeginResult, Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.lookup(documentID)
	result, next := Decide(existing, documentID, m.now(), m.policy)
	if Changed(existing, next) {
		m.entries[documentID] = next
	}
	return result, next, nil
}

func (m *Memory) MarkCompleted(ctx context.Context, documentID string, attempt int) (Entry, error) {
	return m.transition(documentID, attempt, Complete)
}

func (m *Memory) MarkFailed(ctx context.Context, documentID string, attempt int) (Entry, error) {
	return m.transition(documentID, attempt, Fail)
}

func (m *Memory) transition(documentID string, attempt int, fn Transition) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.lookup(documentID), documentID, attempt, m.now())
	if err != nil {
		return Entry{}, err
	}
	m.entries[documentID] = next
	return next, nil
}

func (m *Memory) Get(ctx context.Context, documentID string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[documentID]
	if !ok {
		return Entry{}, notFound(documentID)
	}
	return e, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) lookup(documentID string) *Entry {
	e, ok := m.entries[documentID]
	if !ok {
		return nil
	}
	return &e
}
