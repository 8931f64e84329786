package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"contactshare/internal/circle/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const circleColumns = `id, owner_id, name, attribute_ids, position, is_default, is_public, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, circle *models.Circle) error {
	query := `
		INSERT INTO circles (id, owner_id, name, attribute_ids, position, is_default, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`
	_, err := s.db.ExecContext(ctx, query,
		circle.ID.String(), circle.Owner.String(), circle.Name,
		attributeIDArray(circle.Attributes), circle.Order, circle.Default, circle.Public)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert circle: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, circleID id.CircleID) (*models.Circle, error) {
	query := `SELECT ` + circleColumns + ` FROM circles WHERE id = $1`
	circle, err := scanCircle(s.db.QueryRowContext(ctx, query, circleID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find circle: %w", err)
	}
	return circle, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.Circle, error) {
	query := `SELECT ` + circleColumns + ` FROM circles WHERE owner_id = $1 ORDER BY position`
	rows, err := s.db.QueryContext(ctx, query, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list circles: %w", err)
	}
	defer rows.Close()
	return collectCircles(rows)
}

func (s *PostgresStore) Save(ctx context.Context, circle *models.Circle) error {
	query := `
		UPDATE circles
		SET name = $2, attribute_ids = $3, position = $4, is_default = $5, is_public = $6, updated_at = NOW()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query,
		circle.ID.String(), circle.Name, attributeIDArray(circle.Attributes),
		circle.Order, circle.Default, circle.Public)
	if err != nil {
		return fmt.Errorf("update circle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update circle: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, circleID id.CircleID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM circles WHERE id = $1`, circleID.String())
	if err != nil {
		return fmt.Errorf("delete circle: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListContaining(ctx context.Context, attributeID id.AttributeID) ([]*models.Circle, error) {
	query := `SELECT ` + circleColumns + ` FROM circles WHERE $1 = ANY(attribute_ids)`
	rows, err := s.db.QueryContext(ctx, query, attributeID.String())
	if err != nil {
		return nil, fmt.Errorf("list circles containing attribute: %w", err)
	}
	defer rows.Close()
	return collectCircles(rows)
}

func attributeIDArray(ids []id.AttributeID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, attrID := range ids {
		out[i] = attrID.String()
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCircle(row rowScanner) (*models.Circle, error) {
	var (
		circle   models.Circle
		rawID    string
		rawOwner string
		rawAttrs pq.StringArray
	)
	err := row.Scan(&rawID, &rawOwner, &circle.Name, &rawAttrs,
		&circle.Order, &circle.Default, &circle.Public,
		&circle.CreatedAt, &circle.UpdatedAt)
	if err != nil {
		return nil, err
	}
	circle.ID, err = id.ParseCircleID(rawID)
	if err != nil {
		return nil, err
	}
	circle.Owner, err = id.ParsePersonID(rawOwner)
	if err != nil {
		return nil, err
	}
	circle.Attributes = make([]id.AttributeID, 0, len(rawAttrs))
	for _, raw := range rawAttrs {
		attrID, err := id.ParseAttributeID(raw)
		if err != nil {
			return nil, err
		}
		circle.Attributes = append(circle.Attributes, attrID)
	}
	return &circle, nil
}

func collectCircles(rows *sql.Rows) ([]*models.Circle, error) {
	var out []*models.Circle
	for rows.Next() {
		circle, err := scanCircle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan circle: %w", err)
		}
		out = append(out, circle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate circles: %w", err)
	}
	return out, nil
}
