package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"contactshare/internal/connection/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu          sync.RWMutex
	connections map[id.ConnectionID]*models.Connection
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{connections: make(map[id.ConnectionID]*models.Connection)}
}

func (s *InMemoryStore) Create(_ context.Context, connection *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.connections[connection.ID]; exists {
		return sentinel.ErrConflict
	}
	now := time.Now()
	connection.CreatedAt = now
	connection.UpdatedAt = now
	s.connections[connection.ID] = clone(connection)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, connectionID id.ConnectionID) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connection, ok := s.connections[connectionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(connection), nil
}

func (s *InMemoryStore) Save(_ context.Context, connection *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[connection.ID]; !ok {
		return sentinel.ErrNotFound
	}
	connection.UpdatedAt = time.Now()
	s.connections[connection.ID] = clone(connection)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, connectionID id.ConnectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, connectionID)
	return nil
}

func (s *InMemoryStore) FindFirst(_ context.Context, filter Filter) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.orderedLocked()
	for _, connection := range ordered {
		if matches(connection, filter) {
			return clone(connection), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByOwner(_ context.Context, owner id.PersonID, status models.Status) ([]*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Connection
	for _, connection := range s.orderedLocked() {
		if connection.From != owner {
			continue
		}
		if status != "" && connection.Status != status {
			continue
		}
		out = append(out, clone(connection))
	}
	return out, nil
}

func (s *InMemoryStore) ListByRecipient(_ context.Context, person id.PersonID, status models.Status, updatedOnly bool) ([]*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Connection
	for _, connection := range s.orderedLocked() {
		if connection.To != person {
			continue
		}
		if status != "" && connection.Status != status {
			continue
		}
		if updatedOnly && !connection.UpdateFlag {
			continue
		}
		out = append(out, clone(connection))
	}
	return out, nil
}

func (s *InMemoryStore) ListUnresolved(_ context.Context, addresses []string) ([]*models.Connection, error) {
	wanted := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		if address != "" {
			wanted[address] = struct{}{}
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Connection
	for _, connection := range s.orderedLocked() {
		if !connection.To.IsNil() {
			continue
		}
		if _, ok := wanted[connection.Email]; ok && connection.Email != "" {
			out = append(out, clone(connection))
			continue
		}
		if _, ok := wanted[connection.Phone]; ok && connection.Phone != "" {
			out = append(out, clone(connection))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListSharingCircle(_ context.Context, circleID id.CircleID) ([]*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Connection
	for _, connection := range s.orderedLocked() {
		if connection.SharesCircle(circleID) {
			out = append(out, clone(connection))
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountPending(_ context.Context, from id.PersonID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, connection := range s.connections {
		if connection.From == from && connection.Status == models.StatusPending {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) orderedLocked() []*models.Connection {
	out := make([]*models.Connection, 0, len(s.connections))
	for _, connection := range s.connections {
		out = append(out, connection)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func matches(c *models.Connection, f Filter) bool {
	if !f.From.IsNil() && c.From != f.From {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.To.IsNil() && f.Email == "" && f.Phone == "" {
		return true
	}
	if !f.To.IsNil() && c.To == f.To {
		return true
	}
	if f.Email != "" && c.Email == f.Email {
		return true
	}
	if f.Phone != "" && c.Phone == f.Phone {
		return true
	}
	return false
}

func clone(c *models.Connection) *models.Connection {
	out := *c
	out.Circles = append([]id.CircleID(nil), c.Circles...)
	return &out
}
