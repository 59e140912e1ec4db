package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver

	"github.com/xavierca1/conduit/internal/entity"
)

// NewDBConnection opens the pool and pings it. An unreachable database is
// reported as entity.ErrQueueUnavailable: neither the API nor the workers can
// run without it.
func NewDBConnection(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", entity.ErrQueueUnavailable, err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", entity.ErrQueueUnavailable, err)
	}

	return db, nil
}
