package store

import (
	"context"

	"contactshare/internal/profile/models"
	id "contactshare/pkg/domain"
)

// Store persists profiles. Missing records map to sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, profile *models.Profile) error
	FindByID(ctx context.Context, profileID id.ProfileID) (*models.Profile, error)
	FindByPerson(ctx context.Context, person id.PersonID) (*models.Profile, error)
	Save(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, profileID id.ProfileID) error
	// Count returns the total number of provisioned profiles. Used for
	// the global availability cap; treated as a soft limit under
	// concurrent signups.
	Count(ctx context.Context) (int, error)
}

// BlockStore persists the blocklist.
type BlockStore interface {
	Add(ctx context.Context, block models.Block) error
	Remove(ctx context.Context, person, blocked id.PersonID) error
	// Exists reports whether either person has blocked the other.
	Exists(ctx context.Context, a, b id.PersonID) (bool, error)
	ListByPerson(ctx context.Context, person id.PersonID) ([]models.Block, error)
}
