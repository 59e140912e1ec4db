package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/xavierca1/conduit/internal/entity"
)

type MessageRepository struct {
	DB *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{DB: db}
}

const messageColumns = `id, lead_id, channel, direction, content, status, error, sent_at, created_at`

func (r *MessageRepository) Create(ctx context.Context, m *entity.Message) error {
	query := `
		INSERT INTO messages (lead_id, channel, direction, content, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.DB.QueryRowContext(ctx, query, m.LeadID, m.Channel, m.Direction, m.Content, m.Status).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return writeError("insert message", err)
	}
	return nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*entity.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, lookupError("find message", err, entity.ErrMessageNotFound)
	}
	return m, nil
}

func (r *MessageRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error) {
	query := `UPDATE messages SET status = 'sent', sent_at = $2 WHERE id = $1 AND status = 'queued'`
	return r.markTerminal(ctx, "mark message sent", query, id, sentAt)
}

func (r *MessageRepository) MarkFailed(ctx context.Context, id, errText string) (bool, error) {
	query := `UPDATE messages SET status = 'failed', error = $2 WHERE id = $1 AND status = 'queued'`
	return r.markTerminal(ctx, "mark message failed", query, id, errText)
}

func (r *MessageRepository) markTerminal(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, entity.NewStorageError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, entity.NewStorageError(op, err)
	}
	return n == 1, nil
}

func (r *MessageRepository) ListByLead(ctx context.Context, leadID string, limit int) ([]*entity.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE lead_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{leadID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, entity.NewStorageError("list messages", err)
	}
	defer rows.Close()

	messages := []*entity.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, entity.NewStorageError("scan message", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, entity.NewStorageError("list messages", err)
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*entity.Message, error) {
	var (
		m         entity.Message
		channel   string
		direction string
		status    string
		errText   sql.NullString
		sentAt    sql.NullTime
	)
	err := row.Scan(&m.ID, &m.LeadID, &channel, &direction, &m.Content, &status, &errText, &sentAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.Channel = entity.Channel(channel)
	m.Direction = entity.Direction(direction)
	m.Status = entity.MessageStatus(status)
	m.Error = errText.String
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	return &m, nil
}
