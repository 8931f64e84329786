package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"contactshare/internal/qrcode/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	codes map[id.TokenID]*models.QRCode
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{codes: make(map[id.TokenID]*models.QRCode)}
}

func (s *InMemoryStore) Create(_ context.Context, code *models.QRCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.codes {
		if existing.Token == code.Token {
			return sentinel.ErrConflict
		}
	}
	now := time.Now()
	code.CreatedAt = now
	code.UpdatedAt = now
	s.codes[code.ID] = clone(code)
	return nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*models.QRCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, code := range s.codes {
		if code.Token == token {
			return clone(code), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByOwner(_ context.Context, owner id.PersonID) ([]*models.QRCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.QRCode
	for _, code := range s.codes {
		if code.Owner == owner && !owner.IsNil() {
			out = append(out, clone(code))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, code *models.QRCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.ID]; !ok {
		return sentinel.ErrNotFound
	}
	code.UpdatedAt = time.Now()
	s.codes[code.ID] = clone(code)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, codeID id.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, codeID)
	return nil
}

func (s *InMemoryStore) DeleteByOwner(_ context.Context, owner id.PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for codeID, code := range s.codes {
		if code.Owner == owner {
			delete(s.codes, codeID)
		}
	}
	return nil
}

func clone(q *models.QRCode) *models.QRCode {
	out := *q
	return &out
}
