package store

import (
	"context"
	"sync"
	"time"

	"contactshare/internal/attribute/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

// InMemoryStore keeps attributes in a map guarded by a mutex. The verified
// uniqueness invariant is enforced under the same lock, which is the memory
// equivalent of the partial unique index the Postgres store relies on.
type InMemoryStore struct {
	mu         sync.RWMutex
	attributes map[id.AttributeID]*models.Attribute
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{attributes: make(map[id.AttributeID]*models.Attribute)}
}

func (s *InMemoryStore) Create(_ context.Context, attribute *models.Attribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attributes[attribute.ID]; exists {
		return sentinel.ErrConflict
	}
	if attribute.Verified && s.verifiedDuplicateLocked(attribute) {
		return sentinel.ErrConflict
	}
	now := time.Now()
	attribute.CreatedAt = now
	attribute.UpdatedAt = now
	s.attributes[attribute.ID] = clone(attribute)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, attributeID id.AttributeID) (*models.Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attribute, ok := s.attributes[attributeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(attribute), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, owner id.PersonID) ([]*models.Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attribute
	for _, attribute := range s.attributes {
		if attribute.Owner == owner {
			out = append(out, clone(attribute))
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindByValue(_ context.Context, kind models.AttributeKind, value string, verifiedOnly bool) ([]*models.Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attribute
	for _, attribute := range s.attributes {
		if attribute.Kind != kind || attribute.ResolvedValue() != value {
			continue
		}
		if verifiedOnly && !attribute.Verified {
			continue
		}
		out = append(out, clone(attribute))
	}
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, attribute *models.Attribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attributes[attribute.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if attribute.Verified && s.verifiedDuplicateLocked(attribute) {
		return sentinel.ErrConflict
	}
	attribute.UpdatedAt = time.Now()
	s.attributes[attribute.ID] = clone(attribute)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, attributeID id.AttributeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Deletes tolerate already-gone records so saga compensations stay
	// idempotent.
	delete(s.attributes, attributeID)
	return nil
}

func (s *InMemoryStore) verifiedDuplicateLocked(attribute *models.Attribute) bool {
	for _, existing := range s.attributes {
		if existing.ID == attribute.ID {
			continue
		}
		if existing.Verified && existing.Kind == attribute.Kind &&
			existing.ResolvedValue() == attribute.ResolvedValue() {
			return true
		}
	}
	return false
}

func clone(a *models.Attribute) *models.Attribute {
	out := *a
	if a.Email != nil {
		email := *a.Email
		out.Email = &email
	}
	if a.Phone != nil {
		phone := *a.Phone
		out.Phone = &phone
	}
	if a.Domain != nil {
		domain := *a.Domain
		out.Domain = &domain
	}
	return &out
}
