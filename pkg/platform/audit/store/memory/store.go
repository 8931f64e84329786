package memory

import (
	"context"
	"sync"

	id "contactshare/pkg/domain"
	audit "contactshare/pkg/platform/audit"
)

// InMemoryStore keeps audit events per person. Suitable for tests and
// single-process deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.PersonID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.PersonID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.PersonID] = append(s.events[event.PersonID], event)
	return nil
}

func (s *InMemoryStore) ListByPerson(_ context.Context, personID id.PersonID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[personID]
	out := make([]audit.Event, len(events))
	copy(out, events)
	return out, nil
}
