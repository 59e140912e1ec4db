package database

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xavierca1/conduit/internal/entity"
)

// Postgres error codes the repositories translate.
const (
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

// lookupError maps a failed single-row read to the taxonomy. Malformed ids
// cannot match any row, so they read as not found.
func lookupError(op string, err error, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepr {
		return notFound
	}
	return entity.NewStorageError(op, err)
}

// writeError maps a failed insert. A dangling lead reference means the lead is gone.
func writeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return entity.ErrLeadNotFound
		case pgInvalidTextRepr:
			return entity.ErrLeadNotFound
		}
	}
	return entity.NewStorageError(op, err)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
