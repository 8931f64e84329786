package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"contactshare/internal/message/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[id.MessageID]*models.Message
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{messages: make(map[id.MessageID]*models.Message)}
}

func (s *InMemoryStore) Create(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[message.ID]; exists {
		return sentinel.ErrConflict
	}
	now := time.Now()
	message.CreatedAt = now
	message.UpdatedAt = now
	s.messages[message.ID] = clone(message)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, messageID id.MessageID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	message, ok := s.messages[messageID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(message), nil
}

func (s *InMemoryStore) Save(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[message.ID]; !ok {
		return sentinel.ErrNotFound
	}
	message.UpdatedAt = time.Now()
	s.messages[message.ID] = clone(message)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, messageID id.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, messageID)
	return nil
}

func (s *InMemoryStore) ListByConnection(_ context.Context, connectionID id.ConnectionID) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Message
	for _, message := range s.messages {
		if message.ConnectionID == connectionID {
			out = append(out, clone(message))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) DeleteByConnection(_ context.Context, connectionID id.ConnectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for messageID, message := range s.messages {
		if message.ConnectionID == connectionID {
			delete(s.messages, messageID)
		}
	}
	return nil
}

func (s *InMemoryStore) ListUnclaimed(_ context.Context, kind models.MessageKind, addresses []string) ([]*models.Message, error) {
	wanted := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		wanted[address] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Message
	for _, message := range s.messages {
		if message.Kind != kind || !message.To.IsNil() {
			continue
		}
		if _, ok := wanted[message.Email]; ok {
			out = append(out, clone(message))
			continue
		}
		if _, ok := wanted[message.Phone]; ok && message.Phone != "" {
			out = append(out, clone(message))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByRecipient(_ context.Context, person id.PersonID, kind models.MessageKind) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Message
	for _, message := range s.messages {
		if message.Kind == kind && message.To == person {
			out = append(out, clone(message))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListBySender(_ context.Context, person id.PersonID, kind models.MessageKind) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Message
	for _, message := range s.messages {
		if message.Kind == kind && message.From == person {
			out = append(out, clone(message))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func clone(m *models.Message) *models.Message {
	out := *m
	out.Data = make(map[string]string, len(m.Data))
	for key, value := range m.Data {
		out.Data[key] = value
	}
	return &out
}
