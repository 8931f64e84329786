package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"contactshare/internal/connection/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const connectionColumns = `id, from_id, to_id, inverse_id, status, circle_ids,
	name, email, phone, personal_note, update_flag, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, connection *models.Connection) error {
	query := `
		INSERT INTO connections (id, from_id, to_id, inverse_id, status, circle_ids,
			name, email, phone, personal_note, update_flag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`
	_, err := s.db.ExecContext(ctx, query,
		connection.ID.String(), connection.From.String(),
		nullableID(connection.To.IsNil(), connection.To.String()),
		nullableID(connection.Inverse.IsNil(), connection.Inverse.String()),
		string(connection.Status), circleIDArray(connection.Circles),
		connection.Name, connection.Email, connection.Phone,
		connection.PersonalNote, connection.UpdateFlag)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, connectionID id.ConnectionID) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	connection, err := scanConnection(s.db.QueryRowContext(ctx, query, connectionID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	return connection, nil
}

func (s *PostgresStore) Save(ctx context.Context, connection *models.Connection) error {
	query := `
		UPDATE connections
		SET to_id = $2, inverse_id = $3, status = $4, circle_ids = $5,
			name = $6, email = $7, phone = $8, personal_note = $9,
			update_flag = $10, updated_at = NOW()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query,
		connection.ID.String(),
		nullableID(connection.To.IsNil(), connection.To.String()),
		nullableID(connection.Inverse.IsNil(), connection.Inverse.String()),
		string(connection.Status), circleIDArray(connection.Circles),
		connection.Name, connection.Email, connection.Phone,
		connection.PersonalNote, connection.UpdateFlag)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, connectionID id.ConnectionID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, connectionID.String())
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindFirst(ctx context.Context, filter Filter) (*models.Connection, error) {
	var (
		where []string
		args  []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filter.From.IsNil() {
		where = append(where, "from_id = "+arg(filter.From.String()))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	var alternatives []string
	if !filter.To.IsNil() {
		alternatives = append(alternatives, "to_id = "+arg(filter.To.String()))
	}
	if filter.Email != "" {
		alternatives = append(alternatives, "email = "+arg(filter.Email))
	}
	if filter.Phone != "" {
		alternatives = append(alternatives, "phone = "+arg(filter.Phone))
	}
	if len(alternatives) > 0 {
		where = append(where, "("+strings.Join(alternatives, " OR ")+")")
	}
	if len(where) == 0 {
		return nil, fmt.Errorf("find connection: empty filter")
	}

	query := `SELECT ` + connectionColumns + ` FROM connections WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at LIMIT 1`
	connection, err := scanConnection(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	return connection, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.PersonID, status models.Status) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE from_id = $1`
	args := []any{owner.String()}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list connections by owner: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, person id.PersonID, status models.Status, updatedOnly bool) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE to_id = $1`
	args := []any{person.String()}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if updatedOnly {
		query += ` AND update_flag`
	}
	query += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list connections by recipient: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

func (s *PostgresStore) ListUnresolved(ctx context.Context, addresses []string) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections
		WHERE to_id IS NULL
		AND ((email <> '' AND email = ANY($1)) OR (phone <> '' AND phone = ANY($1)))`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(addresses))
	if err != nil {
		return nil, fmt.Errorf("list unresolved connections: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

func (s *PostgresStore) ListSharingCircle(ctx context.Context, circleID id.CircleID) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE $1 = ANY(circle_ids)`
	rows, err := s.db.QueryContext(ctx, query, circleID.String())
	if err != nil {
		return nil, fmt.Errorf("list connections by circle: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

func (s *PostgresStore) CountPending(ctx context.Context, from id.PersonID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM connections WHERE from_id = $1 AND status = 'pending'`,
		from.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending connections: %w", err)
	}
	return count, nil
}

func nullableID(isNil bool, value string) any {
	if isNil {
		return nil
	}
	return value
}

func circleIDArray(ids []id.CircleID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, circleID := range ids {
		out[i] = circleID.String()
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var (
		connection models.Connection
		rawID      string
		rawFrom    string
		rawTo      sql.NullString
		rawInverse sql.NullString
		rawStatus  string
		rawCircles pq.StringArray
	)
	err := row.Scan(&rawID, &rawFrom, &rawTo, &rawInverse, &rawStatus, &rawCircles,
		&connection.Name, &connection.Email, &connection.Phone,
		&connection.PersonalNote, &connection.UpdateFlag,
		&connection.CreatedAt, &connection.UpdatedAt)
	if err != nil {
		return nil, err
	}
	connection.Status = models.Status(rawStatus)
	connection.ID, err = id.ParseConnectionID(rawID)
	if err != nil {
		return nil, err
	}
	connection.From, err = id.ParsePersonID(rawFrom)
	if err != nil {
		return nil, err
	}
	if rawTo.Valid {
		connection.To, err = id.ParsePersonID(rawTo.String)
		if err != nil {
			return nil, err
		}
	}
	if rawInverse.Valid {
		connection.Inverse, err = id.ParseConnectionID(rawInverse.String)
		if err != nil {
			return nil, err
		}
	}
	connection.Circles = make([]id.CircleID, 0, len(rawCircles))
	for _, raw := range rawCircles {
		circleID, err := id.ParseCircleID(raw)
		if err != nil {
			return nil, err
		}
		connection.Circles = append(connection.Circles, circleID)
	}
	return &connection, nil
}

func collectConnections(rows *sql.Rows) ([]*models.Connection, error) {
	var out []*models.Connection
	for rows.Next() {
		connection, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, connection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return out, nil
}
