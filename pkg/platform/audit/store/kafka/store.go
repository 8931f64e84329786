package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	id "contactshare/pkg/domain"
	"contactshare/internal/platform/kafka/producer"
	audit "contactshare/pkg/platform/audit"
)

// DefaultTopic is where audit events land unless overridden.
const DefaultTopic = "contactshare.audit"

// Store publishes audit events to a Kafka topic keyed by person id so a
// person's trail stays ordered within a partition.
type Store struct {
	producer *producer.Producer
	topic    string
}

func New(p *producer.Producer, topic string) *Store {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Store{producer: p, topic: topic}
}

type wireEvent struct {
	Timestamp time.Time `json:"timestamp"`
	PersonID  string    `json:"person_id"`
	Subject   string    `json:"subject,omitempty"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	Address   string    `json:"address,omitempty"`
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(wireEvent{
		Timestamp: event.Timestamp,
		PersonID:  event.PersonID.String(),
		Subject:   event.Subject,
		Action:    event.Action,
		Reason:    event.Reason,
		Address:   event.Address,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(event.PersonID.String()),
		Value: payload,
	})
}

// ListByPerson is not supported by the Kafka sink; consumers own reads.
func (s *Store) ListByPerson(context.Context, id.PersonID) ([]audit.Event, error) {
	return nil, fmt.Errorf("kafka audit store is write-only")
}
