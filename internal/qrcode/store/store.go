package store

import (
	"context"

	"contactshare/internal/qrcode/models"
	id "contactshare/pkg/domain"
)

// Store persists quick-connect tokens. Missing records map to
// sentinel.ErrNotFound; token value collisions map to ErrConflict.
type Store interface {
	Create(ctx context.Context, code *models.QRCode) error
	FindByToken(ctx context.Context, token string) (*models.QRCode, error)
	ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.QRCode, error)
	Save(ctx context.Context, code *models.QRCode) error
	Delete(ctx context.Context, codeID id.TokenID) error
	DeleteByOwner(ctx context.Context, owner id.PersonID) error
}
