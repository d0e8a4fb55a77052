// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"compliance-engine/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the SQL database connection shared by the ledger, the
// postgres queue backing and the read-only collaborators.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens the pool behind the notification ledger, the
// dispatch_intents queue backing and the read-only allocation, compliance
// record and recipient directory lookups. The pool is sized by
// database.postgres.max_connections; a sweep holds at most one connection
// per statement.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// Ping backs the startup retry loop and the /ready check.
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// GetDB returns the pool handed to ledger.NewPostgresStore, queue.New and
// the compliance and dispatch collaborators.
func (c *PostgresClient) GetDB() *sql.DB {
	return c.DB
}
