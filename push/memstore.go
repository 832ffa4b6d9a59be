package push

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory PendingStore, useful for tests and as a
// reference implementation of the spec §6 PendingStore contract (a host
// backing it with durable storage need only match this interface).
type MemStore struct {
	mu  sync.Mutex
	ops map[uuid.UUID]PendingOperation
}

func NewMemStore() *MemStore {
	return &MemStore{ops: make(map[uuid.UUID]PendingOperation)}
}

func (s *MemStore) Append(op PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.ID] = op
	return nil
}

func (s *MemStore) List() ([]PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingOperation, 0, len(s.ops))
	for _, op := range s.ops {
		out = append(out, op)
	}
	return out, nil
}

func (s *MemStore) Remove(opID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ops, opID)
	return nil
}

func (s *MemStore) Replace(opID uuid.UUID, op PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[opID]; !ok {
		return fmt.Errorf("push: no pending op %s to replace", opID)
	}
	s.ops[op.ID] = op
	return nil
}

func (s *MemStore) Drop(opID uuid.UUID) error {
	return s.Remove(opID)
}
