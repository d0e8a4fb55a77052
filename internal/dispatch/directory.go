package dispatch

import (
	"context"
	"database/sql"
	"fmt"

	"compliance-engine/internal/models"
)

// RecipientDirectory resolves an email address for intents queued without
// one.
type RecipientDirectory interface {
	EmailFor(ctx context.Context, recipientID string, recipientType models.RecipientType) (string, error)
}

// PostgresDirectory reads facilitator and manager contact details from the
// CRUD service tables. An unknown recipient yields "" and no error.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) EmailFor(ctx context.Context, recipientID string, recipientType models.RecipientType) (string, error) {
	var query string
	switch recipientType {
	case models.RecipientFacilitator:
		query = `SELECT COALESCE(email, '') FROM facilitators WHERE id = $1`
	case models.RecipientManager:
		query = `SELECT COALESCE(email, '') FROM managers WHERE id = $1`
	default:
		return "", fmt.Errorf("invalid recipient type: %s", recipientType)
	}

	var email string
	err := d.db.QueryRowContext(ctx, query, recipientID).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return email, err
}
