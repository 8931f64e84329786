package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"contactshare/internal/qrcode/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const qrcodeColumns = `id, token, owner_id, circle_id, name, label, preprinted, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, code *models.QRCode) error {
	query := `
		INSERT INTO qrcodes (id, token, owner_id, circle_id, name, label, preprinted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`
	_, err := s.db.ExecContext(ctx, query,
		code.ID.String(), code.Token,
		nullableID(code.Owner.IsNil(), code.Owner.String()),
		nullableID(code.Circle.IsNil(), code.Circle.String()),
		code.Name, code.Label, code.Preprinted)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert qrcode: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.QRCode, error) {
	query := `SELECT ` + qrcodeColumns + ` FROM qrcodes WHERE token = $1`
	code, err := scanQRCode(s.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find qrcode: %w", err)
	}
	return code, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.QRCode, error) {
	query := `SELECT ` + qrcodeColumns + ` FROM qrcodes WHERE owner_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list qrcodes: %w", err)
	}
	defer rows.Close()

	var out []*models.QRCode
	for rows.Next() {
		code, err := scanQRCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan qrcode: %w", err)
		}
		out = append(out, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate qrcodes: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, code *models.QRCode) error {
	query := `
		UPDATE qrcodes
		SET owner_id = $2, circle_id = $3, name = $4, label = $5, updated_at = NOW()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query,
		code.ID.String(),
		nullableID(code.Owner.IsNil(), code.Owner.String()),
		nullableID(code.Circle.IsNil(), code.Circle.String()),
		code.Name, code.Label)
	if err != nil {
		return fmt.Errorf("update qrcode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update qrcode: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, codeID id.TokenID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM qrcodes WHERE id = $1`, codeID.String())
	if err != nil {
		return fmt.Errorf("delete qrcode: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByOwner(ctx context.Context, owner id.PersonID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM qrcodes WHERE owner_id = $1`, owner.String())
	if err != nil {
		return fmt.Errorf("delete qrcodes by owner: %w", err)
	}
	return nil
}

func nullableID(isNil bool, value string) any {
	if isNil {
		return nil
	}
	return value
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQRCode(row rowScanner) (*models.QRCode, error) {
	var (
		code      models.QRCode
		rawID     string
		rawOwner  sql.NullString
		rawCircle sql.NullString
	)
	err := row.Scan(&rawID, &code.Token, &rawOwner, &rawCircle,
		&code.Name, &code.Label, &code.Preprinted,
		&code.CreatedAt, &code.UpdatedAt)
	if err != nil {
		return nil, err
	}
	code.ID, err = id.ParseTokenID(rawID)
	if err != nil {
		return nil, err
	}
	if rawOwner.Valid {
		code.Owner, err = id.ParsePersonID(rawOwner.String)
		if err != nil {
			return nil, err
		}
	}
	if rawCircle.Valid {
		code.Circle, err = id.ParseCircleID(rawCircle.String)
		if err != nil {
			return nil, err
		}
	}
	return &code, nil
}
