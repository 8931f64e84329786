package store

import (
	"context"

	"contactshare/internal/attribute/models"
	id "contactshare/pkg/domain"
)

// Store persists attributes. Implementations must enforce the verified
// uniqueness invariant on Save: at most one verified attribute per
// (kind, resolved value) across all owners. Writes that would break it
// return sentinel.ErrConflict.
type Store interface {
	Create(ctx context.Context, attribute *models.Attribute) error
	FindByID(ctx context.Context, attributeID id.AttributeID) (*models.Attribute, error)
	ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.Attribute, error)
	// FindByValue returns attributes of the kind whose resolved value matches.
	// verifiedOnly narrows to verified attributes.
	FindByValue(ctx context.Context, kind models.AttributeKind, value string, verifiedOnly bool) ([]*models.Attribute, error)
	Save(ctx context.Context, attribute *models.Attribute) error
	Delete(ctx context.Context, attributeID id.AttributeID) error
}
