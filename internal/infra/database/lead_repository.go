package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xavierca1/conduit/internal/entity"
)

type LeadRepository struct {
	DB *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{DB: db}
}

func (r *LeadRepository) Create(ctx context.Context, lead *entity.Lead) error {
	metadata, err := json.Marshal(lead.Metadata)
	if err != nil {
		return fmt.Errorf("encode lead metadata: %w", err)
	}

	query := `
		INSERT INTO leads (name, email, phone, status, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING id, created_at, updated_at
	`

	err = r.DB.QueryRowContext(
		ctx,
		query,
		lead.Name,
		nullString(lead.Email),
		nullString(lead.Phone),
		lead.Status,
		string(metadata),
	).Scan(
		&lead.ID,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return entity.NewStorageError("insert lead", err)
	}
	return nil
}

func (r *LeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	query := `
		SELECT id, name, email, phone, status, metadata, created_at, updated_at
		FROM leads
		WHERE id = $1
	`

	var (
		lead     entity.Lead
		email    sql.NullString
		phone    sql.NullString
		status   string
		metadata []byte
	)
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&lead.ID,
		&lead.Name,
		&email,
		&phone,
		&status,
		&metadata,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return nil, lookupError("find lead", err, entity.ErrLeadNotFound)
	}

	lead.Email = email.String
	lead.Phone = phone.String
	lead.Status = entity.LeadStatus(status)
	lead.Metadata = map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &lead.Metadata); err != nil {
			return nil, fmt.Errorf("decode lead metadata: %w", err)
		}
	}
	return &lead, nil
}

// UpdateStatus is a compare-and-set: the row only changes while it still holds from.
func (r *LeadRepository) UpdateStatus(ctx context.Context, id string, from, to entity.LeadStatus) (bool, error) {
	query := `UPDATE leads SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	res, err := r.DB.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, entity.NewStorageError("update lead status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, entity.NewStorageError("update lead status", err)
	}
	return n == 1, nil
}
