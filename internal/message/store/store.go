package store

import (
	"context"

	"contactshare/internal/message/models"
	id "contactshare/pkg/domain"
)

// Store persists the message ledger. Missing records map to
// sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, messageID id.MessageID) (*models.Message, error)
	Save(ctx context.Context, message *models.Message) error
	Delete(ctx context.Context, messageID id.MessageID) error

	// ListByConnection returns every message attached to a connection,
	// oldest first.
	ListByConnection(ctx context.Context, connectionID id.ConnectionID) ([]*models.Message, error)
	// DeleteByConnection removes all messages under a connection.
	// Deleting an unknown connection is a no-op.
	DeleteByConnection(ctx context.Context, connectionID id.ConnectionID) error

	// ListUnclaimed returns messages of the given kind with no resolved
	// recipient whose email or phone matches one of the addresses.
	ListUnclaimed(ctx context.Context, kind models.MessageKind, addresses []string) ([]*models.Message, error)
	// ListByRecipient returns messages of the given kind addressed to
	// the person, newest first.
	ListByRecipient(ctx context.Context, person id.PersonID, kind models.MessageKind) ([]*models.Message, error)
	// ListBySender returns messages of the given kind sent by the
	// person, newest first.
	ListBySender(ctx context.Context, person id.PersonID, kind models.MessageKind) ([]*models.Message, error)
}
