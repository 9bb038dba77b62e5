// Package statestore defines the durable key-value contract the executor
// uses to persist per-particle state, plus the bundled implementations.
//
// The kernel serializes invocations per particle, so a store only needs to
// support concurrent access across different keys, never for the same key.
package statestore

import (
	"context"
	"sync"
)

// Store is the per-particle state persistence contract. Values are opaque
// JSON blobs; the executor owns encoding and decoding.
type Store interface {
	// Get returns the stored state for the particle id. The second return
	// reports presence: (nil, false, nil) means no state has ever been
	// persisted for this id.
	Get(ctx context.Context, particleID string) ([]byte, bool, error)

	// Put persists the state for the particle id, replacing any previous
	// value.
	Put(ctx context.Context, particleID string, state []byte) error

	// Close releases the store's resources.
	Close() error
}

// MemoryStore keeps particle state in process memory. It is the default
// store and the one the tests use; state does not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, particleID string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[particleID]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(state))
	copy(out, state)
	return out, true, nil
}

func (m *MemoryStore) Put(ctx context.Context, particleID string, state []byte) error {
	stored := make([]byte, len(state))
	copy(stored, state)

	m.mu.Lock()
	m.states[particleID] = stored
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
