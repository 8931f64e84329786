package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"contactshare/internal/attribute/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

// PostgresStore persists attributes in PostgreSQL. The verified uniqueness
// invariant is backed by a partial unique index on (kind, value) WHERE
// verified (migrations/0001), so concurrent writers cannot both verify the
// same value; unique violations surface as sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type paramsColumn struct {
	Email  *models.EmailParams  `json:"email,omitempty"`
	Phone  *models.PhoneParams  `json:"phone,omitempty"`
	Domain *models.DomainParams `json:"domain,omitempty"`
}

func (s *PostgresStore) Create(ctx context.Context, attribute *models.Attribute) error {
	now := time.Now()
	attribute.CreatedAt = now
	attribute.UpdatedAt = now
	return s.upsert(ctx, attribute, `
		INSERT INTO attributes (id, owner_id, kind, value, params, verified, exportable, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
}

func (s *PostgresStore) Save(ctx context.Context, attribute *models.Attribute) error {
	attribute.UpdatedAt = time.Now()
	params, err := json.Marshal(paramsColumn{Email: attribute.Email, Phone: attribute.Phone, Domain: attribute.Domain})
	if err != nil {
		return fmt.Errorf("marshal attribute params: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE attributes
		SET value = $2, params = $3, verified = $4, exportable = $5, updated_at = $6
		WHERE id = $1`,
		attribute.ID.String(), attribute.ResolvedValue(), params,
		attribute.Verified, attribute.Exportable, attribute.UpdatedAt)
	if err != nil {
		return translateUnique(err, "save attribute")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save attribute: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) upsert(ctx context.Context, attribute *models.Attribute, query string) error {
	params, err := json.Marshal(paramsColumn{Email: attribute.Email, Phone: attribute.Phone, Domain: attribute.Domain})
	if err != nil {
		return fmt.Errorf("marshal attribute params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query,
		attribute.ID.String(), attribute.Owner.String(), string(attribute.Kind),
		attribute.ResolvedValue(), params, attribute.Verified, attribute.Exportable,
		attribute.CreatedAt, attribute.UpdatedAt)
	if err != nil {
		return translateUnique(err, "create attribute")
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, attributeID id.AttributeID) (*models.Attribute, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, kind, value, params, verified, exportable, created_at, updated_at
		FROM attributes WHERE id = $1`, attributeID.String())
	attribute, err := scanAttribute(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find attribute by id: %w", err)
	}
	return attribute, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.Attribute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, kind, value, params, verified, exportable, created_at, updated_at
		FROM attributes WHERE owner_id = $1 ORDER BY created_at`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list attributes by owner: %w", err)
	}
	defer rows.Close()
	return collectAttributes(rows)
}

func (s *PostgresStore) FindByValue(ctx context.Context, kind models.AttributeKind, value string, verifiedOnly bool) ([]*models.Attribute, error) {
	query := `
		SELECT id, owner_id, kind, value, params, verified, exportable, created_at, updated_at
		FROM attributes WHERE kind = $1 AND value = $2`
	if verifiedOnly {
		query += ` AND verified`
	}
	rows, err := s.db.QueryContext(ctx, query, string(kind), value)
	if err != nil {
		return nil, fmt.Errorf("find attributes by value: %w", err)
	}
	defer rows.Close()
	return collectAttributes(rows)
}

func (s *PostgresStore) Delete(ctx context.Context, attributeID id.AttributeID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attributes WHERE id = $1`, attributeID.String())
	if err != nil {
		return fmt.Errorf("delete attribute: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttribute(row rowScanner) (*models.Attribute, error) {
	var (
		rawID, rawOwner, kind, value string
		rawParams                    []byte
		attribute                    models.Attribute
	)
	err := row.Scan(&rawID, &rawOwner, &kind, &value, &rawParams,
		&attribute.Verified, &attribute.Exportable, &attribute.CreatedAt, &attribute.UpdatedAt)
	if err != nil {
		return nil, err
	}
	attributeID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse attribute id: %w", err)
	}
	ownerID, err := uuid.Parse(rawOwner)
	if err != nil {
		return nil, fmt.Errorf("parse attribute owner: %w", err)
	}
	var params paramsColumn
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, fmt.Errorf("unmarshal attribute params: %w", err)
		}
	}
	attribute.ID = id.AttributeID(attributeID)
	attribute.Owner = id.PersonID(ownerID)
	attribute.Kind = models.AttributeKind(kind)
	attribute.Email = params.Email
	attribute.Phone = params.Phone
	attribute.Domain = params.Domain
	if attribute.Email == nil && attribute.Phone == nil && attribute.Domain == nil {
		attribute.Value = value
	}
	return &attribute, nil
}

func collectAttributes(rows *sql.Rows) ([]*models.Attribute, error) {
	var out []*models.Attribute
	for rows.Next() {
		attribute, err := scanAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		out = append(out, attribute)
	}
	return out, rows.Err()
}

func translateUnique(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}
