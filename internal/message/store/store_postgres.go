package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"contactshare/internal/message/models"
	id "contactshare/pkg/domain"
	"contactshare/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const messageColumns = `id, kind, from_id, to_id, connection_id, email, phone,
	from_name, from_email, from_phone, to_name, subject, body, data,
	read, sent, emailed, texted, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, message *models.Message) error {
	data, err := json.Marshal(message.Data)
	if err != nil {
		return fmt.Errorf("marshal message data: %w", err)
	}
	query := `
		INSERT INTO messages (id, kind, from_id, to_id, connection_id, email, phone,
			from_name, from_email, from_phone, to_name, subject, body, data,
			read, sent, emailed, texted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW(), NOW())`
	_, err = s.db.ExecContext(ctx, query,
		message.ID.String(), string(message.Kind), message.From.String(),
		nullableID(message.To.IsNil(), message.To.String()),
		nullableID(message.ConnectionID.IsNil(), message.ConnectionID.String()),
		message.Email, message.Phone,
		message.FromName, message.FromEmail, message.FromPhone, message.ToName,
		message.Subject, message.Body, data,
		message.Read, message.Sent, message.Emailed, message.Texted)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	message, err := scanMessage(s.db.QueryRowContext(ctx, query, messageID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return message, nil
}

func (s *PostgresStore) Save(ctx context.Context, message *models.Message) error {
	data, err := json.Marshal(message.Data)
	if err != nil {
		return fmt.Errorf("marshal message data: %w", err)
	}
	query := `
		UPDATE messages
		SET to_id = $2, connection_id = $3, email = $4, phone = $5,
			from_name = $6, from_email = $7, from_phone = $8, to_name = $9,
			subject = $10, body = $11, data = $12,
			read = $13, sent = $14, emailed = $15, texted = $16, updated_at = NOW()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query,
		message.ID.String(),
		nullableID(message.To.IsNil(), message.To.String()),
		nullableID(message.ConnectionID.IsNil(), message.ConnectionID.String()),
		message.Email, message.Phone,
		message.FromName, message.FromEmail, message.FromPhone, message.ToName,
		message.Subject, message.Body, data,
		message.Read, message.Sent, message.Emailed, message.Texted)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, messageID id.MessageID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, messageID.String())
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByConnection(ctx context.Context, connectionID id.ConnectionID) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE connection_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, connectionID.String())
	if err != nil {
		return nil, fmt.Errorf("list messages by connection: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *PostgresStore) DeleteByConnection(ctx context.Context, connectionID id.ConnectionID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE connection_id = $1`, connectionID.String())
	if err != nil {
		return fmt.Errorf("delete messages by connection: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUnclaimed(ctx context.Context, kind models.MessageKind, addresses []string) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE kind = $1 AND to_id IS NULL
		AND (email = ANY($2) OR (phone <> '' AND phone = ANY($2)))`
	rows, err := s.db.QueryContext(ctx, query, string(kind), pq.Array(addresses))
	if err != nil {
		return nil, fmt.Errorf("list unclaimed messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, person id.PersonID, kind models.MessageKind) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE to_id = $1 AND kind = $2 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, person.String(), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list messages by recipient: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *PostgresStore) ListBySender(ctx context.Context, person id.PersonID, kind models.MessageKind) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE from_id = $1 AND kind = $2 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, person.String(), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list messages by sender: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
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

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		message models.Message
		rawID   string
		rawKind string
		rawFrom string
		rawTo   sql.NullString
		rawConn sql.NullString
		rawData []byte
	)
	err := row.Scan(&rawID, &rawKind, &rawFrom, &rawTo, &rawConn,
		&message.Email, &message.Phone,
		&message.FromName, &message.FromEmail, &message.FromPhone, &message.ToName,
		&message.Subject, &message.Body, &rawData,
		&message.Read, &message.Sent, &message.Emailed, &message.Texted,
		&message.CreatedAt, &message.UpdatedAt)
	if err != nil {
		return nil, err
	}
	message.Kind = models.MessageKind(rawKind)
	message.ID, err = id.ParseMessageID(rawID)
	if err != nil {
		return nil, err
	}
	message.From, err = id.ParsePersonID(rawFrom)
	if err != nil {
		return nil, err
	}
	if rawTo.Valid {
		message.To, err = id.ParsePersonID(rawTo.String)
		if err != nil {
			return nil, err
		}
	}
	if rawConn.Valid {
		message.ConnectionID, err = id.ParseConnectionID(rawConn.String)
		if err != nil {
			return nil, err
		}
	}
	if len(rawData) > 0 {
		if err := json.Unmarshal(rawData, &message.Data); err != nil {
			return nil, fmt.Errorf("unmarshal message data: %w", err)
		}
	}
	if message.Data == nil {
		message.Data = map[string]string{}
	}
	return &message, nil
}

func collectMessages(rows *sql.Rows) ([]*models.Message, error) {
	var out []*models.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
