package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xavierca1/conduit/internal/entity"
)

// EventRepository is append-only: there is no update or delete.
type EventRepository struct {
	DB *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{DB: db}
}

func (r *EventRepository) Create(ctx context.Context, e *entity.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	query := `
		INSERT INTO events (lead_id, event_type, payload, timestamp)
		VALUES ($1, $2, $3::jsonb, $4)
		RETURNING id
	`

	if err := r.DB.QueryRowContext(ctx, query, e.LeadID, e.Type, string(payload), e.Timestamp).Scan(&e.ID); err != nil {
		return writeError("insert event", err)
	}
	return nil
}

func (r *EventRepository) ListByLead(ctx context.Context, leadID string) ([]*entity.Event, error) {
	query := `
		SELECT id, lead_id, event_type, payload, timestamp
		FROM events
		WHERE lead_id = $1
		ORDER BY timestamp DESC, id DESC
	`

	rows, err := r.DB.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, entity.NewStorageError("list events", err)
	}
	defer rows.Close()

	events := []*entity.Event{}
	for rows.Next() {
		var (
			e       entity.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.LeadID, &typ, &payload, &e.Timestamp); err != nil {
			return nil, entity.NewStorageError("scan event", err)
		}
		e.Type = entity.EventType(typ)
		e.Payload = map[string]any{}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, entity.NewStorageError("list events", err)
	}
	return events, nil
}
