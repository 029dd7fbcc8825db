package state

import (
	"context"
	"sync"
)

// MemoryStore keeps agent progress in process memory. It is the default and
// suits single-run agents and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]Record)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, agentID int64) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[agentID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, agentID int64, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[agentID] = rec
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
