package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"contactshare/internal/circle/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	circles map[id.CircleID]*models.Circle
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{circles: make(map[id.CircleID]*models.Circle)}
}

func (s *InMemoryStore) Create(_ context.Context, circle *models.Circle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.circles[circle.ID]; exists {
		return sentinel.ErrConflict
	}
	now := time.Now()
	circle.CreatedAt = now
	circle.UpdatedAt = now
	s.circles[circle.ID] = clone(circle)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, circleID id.CircleID) (*models.Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	circle, ok := s.circles[circleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(circle), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, owner id.PersonID) ([]*models.Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Circle
	for _, circle := range s.circles {
		if circle.Owner == owner {
			out = append(out, clone(circle))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, circle *models.Circle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.circles[circle.ID]; !ok {
		return sentinel.ErrNotFound
	}
	circle.UpdatedAt = time.Now()
	s.circles[circle.ID] = clone(circle)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, circleID id.CircleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.circles, circleID)
	return nil
}

func (s *InMemoryStore) ListContaining(_ context.Context, attributeID id.AttributeID) ([]*models.Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Circle
	for _, circle := range s.circles {
		if circle.Contains(attributeID) {
			out = append(out, clone(circle))
		}
	}
	return out, nil
}

func clone(c *models.Circle) *models.Circle {
	out := *c
	out.Attributes = append([]id.AttributeID(nil), c.Attributes...)
	return &out
}
