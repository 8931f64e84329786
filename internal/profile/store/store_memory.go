package store

import (
	"context"
	"sync"
	"time"

	"contactshare/internal/profile/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[id.ProfileID]*models.Profile
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[id.ProfileID]*models.Profile)}
}

func (s *InMemoryStore) Create(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[profile.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.profiles {
		if existing.Person == profile.Person {
			return sentinel.ErrConflict
		}
	}
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	s.profiles[profile.ID] = clone(profile)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, profileID id.ProfileID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[profileID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(profile), nil
}

func (s *InMemoryStore) FindByPerson(_ context.Context, person id.PersonID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, profile := range s.profiles {
		if profile.Person == person {
			return clone(profile), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Save(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.ID]; !ok {
		return sentinel.ErrNotFound
	}
	profile.UpdatedAt = time.Now()
	s.profiles[profile.ID] = clone(profile)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, profileID id.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, profileID)
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles), nil
}

func clone(p *models.Profile) *models.Profile {
	out := *p
	out.Attributes = append([]id.AttributeID(nil), p.Attributes...)
	out.Circles = append([]id.CircleID(nil), p.Circles...)
	return &out
}

// InMemoryBlockStore keeps the blocklist in process.
type InMemoryBlockStore struct {
	mu     sync.RWMutex
	blocks map[[2]id.PersonID]models.Block
}

func NewInMemoryBlockStore() *InMemoryBlockStore {
	return &InMemoryBlockStore{blocks: make(map[[2]id.PersonID]models.Block)}
}

func (s *InMemoryBlockStore) Add(_ context.Context, block models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	block.CreatedAt = time.Now()
	s.blocks[[2]id.PersonID{block.Person, block.Blocked}] = block
	return nil
}

func (s *InMemoryBlockStore) Remove(_ context.Context, person, blocked id.PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, [2]id.PersonID{person, blocked})
	return nil
}

func (s *InMemoryBlockStore) Exists(_ context.Context, a, b id.PersonID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.blocks[[2]id.PersonID{a, b}]; ok {
		return true, nil
	}
	_, ok := s.blocks[[2]id.PersonID{b, a}]
	return ok, nil
}

func (s *InMemoryBlockStore) ListByPerson(_ context.Context, person id.PersonID) ([]models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Block
	for key, block := range s.blocks {
		if key[0] == person {
			out = append(out, block)
		}
	}
	return out, nil
}
