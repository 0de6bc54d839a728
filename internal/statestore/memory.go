package statestore

import (
	"context"
	"sync"

	"github.com/matchlog/matchlog/internal/combatlog"
)

// MemoryStore is an in-process parse state store for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*combatlog.ParseState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*combatlog.ParseState)}
}

// Put seeds state for a partition.
func (s *MemoryStore) Put(partitionID string, state *combatlog.ParseState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[partitionID] = state
}

func (s *MemoryStore) Get(ctx context.Context, partitionID string) (*combatlog.ParseState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[partitionID]
	if !ok {
		return nil, ErrStateNotFound
	}
	cp := *state
	return &cp, nil
}

func (s *MemoryStore) Close() error { return nil }
