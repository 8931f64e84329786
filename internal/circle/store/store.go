package store

import (
	"context"

	"contactshare/internal/circle/models"
	id "contactshare/pkg/domain"
)

type Store interface {
	Create(ctx context.Context, circle *models.Circle) error
	FindByID(ctx context.Context, circleID id.CircleID) (*models.Circle, error)
	ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.Circle, error)
	Save(ctx context.Context, circle *models.Circle) error
	Delete(ctx context.Context, circleID id.CircleID) error
	// ListContaining returns the owner's circles that include the attribute.
	ListContaining(ctx context.Context, attributeID id.AttributeID) ([]*models.Circle, error)
}
