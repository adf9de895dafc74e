package statestore

import (
	"context"
	"slices"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps values in memory. It is used in tests and when no
// durable backend is configured.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]string
	writes int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]string)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.values[key]
	return slices.Clone(ids), ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = slices.Clone(ids)
	s.writes++
	return nil
}

// Writes returns how many Set calls the store has served.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
