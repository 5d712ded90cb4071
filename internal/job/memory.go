package job

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// It uses a map with RWMutex for thread-safe access.
// Suitable for development and testing; use RedisStore when state must
// outlive the process.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryStore creates a new in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*State),
	}
}

// Save persists a record. Creates a clone to avoid external mutations.
func (m *MemoryStore) Save(_ context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.JobID] = state.Clone()
	return nil
}

// Get returns a clone of the record to prevent external mutations.
func (m *MemoryStore) Get(_ context.Context, jobID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return state.Clone(), nil
}

// Update applies u to the stored record.
func (m *MemoryStore) Update(_ context.Context, jobID string, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[jobID]
	if !ok {
		return ErrJobNotFound
	}
	next := state.Clone()
	if err := next.Apply(u, time.Now()); err != nil {
		return err
	}
	m.states[jobID] = next
	return nil
}
