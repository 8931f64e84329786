package store

import (
	"context"

	"contactshare/internal/connection/models"
	id "contactshare/pkg/domain"
)

// Filter narrows connection lookups. Zero values match everything.
type Filter struct {
	From   id.PersonID
	To     id.PersonID
	Email  string
	Phone  string
	Status models.Status
}

// Store persists relationship records. Missing records map to
// sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, connection *models.Connection) error
	FindByID(ctx context.Context, connectionID id.ConnectionID) (*models.Connection, error)
	Save(ctx context.Context, connection *models.Connection) error
	Delete(ctx context.Context, connectionID id.ConnectionID) error

	// FindFirst returns the first connection matching the filter. When
	// To, Email and Phone are all set they match as alternatives; From
	// and Status always constrain.
	FindFirst(ctx context.Context, filter Filter) (*models.Connection, error)

	// ListByOwner returns the person's outgoing records, optionally by
	// status.
	ListByOwner(ctx context.Context, owner id.PersonID, status models.Status) ([]*models.Connection, error)
	// ListByRecipient returns records addressed to the person,
	// optionally filtered to those with a raised update flag.
	ListByRecipient(ctx context.Context, person id.PersonID, status models.Status, updatedOnly bool) ([]*models.Connection, error)
	// ListUnresolved returns records with no recipient whose raw email
	// or phone matches one of the addresses.
	ListUnresolved(ctx context.Context, addresses []string) ([]*models.Connection, error)
	// ListSharingCircle returns every record disclosing the circle.
	ListSharingCircle(ctx context.Context, circleID id.CircleID) ([]*models.Connection, error)
	// CountPending counts the person's outstanding invitations.
	CountPending(ctx context.Context, from id.PersonID) (int, error)
}
