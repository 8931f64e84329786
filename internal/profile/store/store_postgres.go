package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"contactshare/internal/profile/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `id, person_id, name, primary_email, primary_phone,
	attribute_ids, circle_ids, default_circle_id, pending_limit,
	new_invitations, new_connections, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (id, person_id, name, primary_email, primary_phone,
			attribute_ids, circle_ids, default_circle_id, pending_limit,
			new_invitations, new_connections, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`
	_, err := s.db.ExecContext(ctx, query,
		profile.ID.String(), profile.Person.String(), profile.Name,
		profile.PrimaryEmail, profile.PrimaryPhone,
		idArray(attributeStrings(profile.Attributes)), idArray(circleStrings(profile.Circles)),
		nullableID(profile.DefaultCircle.IsNil(), profile.DefaultCircle.String()),
		profile.PendingLimit, profile.NewInvitations, profile.NewConnections)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return s.findOne(ctx, query, profileID.String())
}

func (s *PostgresStore) FindByPerson(ctx context.Context, person id.PersonID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE person_id = $1`
	return s.findOne(ctx, query, person.String())
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Profile, error) {
	profile, err := scanProfile(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) Save(ctx context.Context, profile *models.Profile) error {
	query := `
		UPDATE profiles
		SET name = $2, primary_email = $3, primary_phone = $4,
			attribute_ids = $5, circle_ids = $6, default_circle_id = $7,
			pending_limit = $8, new_invitations = $9, new_connections = $10,
			updated_at = NOW()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query,
		profile.ID.String(), profile.Name, profile.PrimaryEmail, profile.PrimaryPhone,
		idArray(attributeStrings(profile.Attributes)), idArray(circleStrings(profile.Circles)),
		nullableID(profile.DefaultCircle.IsNil(), profile.DefaultCircle.String()),
		profile.PendingLimit, profile.NewInvitations, profile.NewConnections)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, profileID id.ProfileID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, profileID.String())
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return count, nil
}

func nullableID(isNil bool, value string) any {
	if isNil {
		return nil
	}
	return value
}

func idArray(values []string) pq.StringArray {
	return pq.StringArray(values)
}

func attributeStrings(ids []id.AttributeID) []string {
	out := make([]string, len(ids))
	for i, attributeID := range ids {
		out[i] = attributeID.String()
	}
	return out
}

func circleStrings(ids []id.CircleID) []string {
	out := make([]string, len(ids))
	for i, circleID := range ids {
		out[i] = circleID.String()
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var (
		profile    models.Profile
		rawID      string
		rawPerson  string
		rawAttrs   pq.StringArray
		rawCircles pq.StringArray
		rawDefault sql.NullString
	)
	err := row.Scan(&rawID, &rawPerson, &profile.Name,
		&profile.PrimaryEmail, &profile.PrimaryPhone,
		&rawAttrs, &rawCircles, &rawDefault, &profile.PendingLimit,
		&profile.NewInvitations, &profile.NewConnections,
		&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return nil, err
	}
	profile.ID, err = id.ParseProfileID(rawID)
	if err != nil {
		return nil, err
	}
	profile.Person, err = id.ParsePersonID(rawPerson)
	if err != nil {
		return nil, err
	}
	if rawDefault.Valid {
		profile.DefaultCircle, err = id.ParseCircleID(rawDefault.String)
		if err != nil {
			return nil, err
		}
	}
	for _, raw := range rawAttrs {
		attributeID, err := id.ParseAttributeID(raw)
		if err != nil {
			return nil, err
		}
		profile.Attributes = append(profile.Attributes, attributeID)
	}
	for _, raw := range rawCircles {
		circleID, err := id.ParseCircleID(raw)
		if err != nil {
			return nil, err
		}
		profile.Circles = append(profile.Circles, circleID)
	}
	return &profile, nil
}

// PostgresBlockStore persists the blocklist.
type PostgresBlockStore struct {
	db *sql.DB
}

func NewPostgresBlockStore(db *sql.DB) *PostgresBlockStore {
	return &PostgresBlockStore{db: db}
}

func (s *PostgresBlockStore) Add(ctx context.Context, block models.Block) error {
	query := `
		INSERT INTO blocks (person_id, blocked_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING`
	_, err := s.db.ExecContext(ctx, query, block.Person.String(), block.Blocked.String())
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (s *PostgresBlockStore) Remove(ctx context.Context, person, blocked id.PersonID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blocks WHERE person_id = $1 AND blocked_id = $2`,
		person.String(), blocked.String())
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

func (s *PostgresBlockStore) Exists(ctx context.Context, a, b id.PersonID) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM blocks
		WHERE (person_id = $1 AND blocked_id = $2) OR (person_id = $2 AND blocked_id = $1)`
	if err := s.db.QueryRowContext(ctx, query, a.String(), b.String()).Scan(&count); err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return count > 0, nil
}

func (s *PostgresBlockStore) ListByPerson(ctx context.Context, person id.PersonID) ([]models.Block, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT person_id, blocked_id, created_at FROM blocks WHERE person_id = $1`,
		person.String())
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var out []models.Block
	for rows.Next() {
		var (
			block      models.Block
			rawPerson  string
			rawBlocked string
		)
		if err := rows.Scan(&rawPerson, &rawBlocked, &block.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		if block.Person, err = id.ParsePersonID(rawPerson); err != nil {
			return nil, err
		}
		if block.Blocked, err = id.ParsePersonID(rawBlocked); err != nil {
			return nil, err
		}
		out = append(out, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return out, nil
}
