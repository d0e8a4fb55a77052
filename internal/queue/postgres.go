package queue

import (
	"context"
	"database/sql"
	"errors"

	"compliance-engine/internal/models"
)

const popIntentSQL = `DELETE FROM dispatch_intents
	WHERE id = (SELECT id FROM dispatch_intents ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED)
	RETURNING payload`

// PostgresQueue polls the dispatch_intents table. SKIP LOCKED keeps
// concurrent consumers from taking the same row.
type PostgresQueue struct {
	db *sql.DB
}

func NewPostgresQueue(db *sql.DB) *PostgresQueue {
	return &PostgresQueue{db: db}
}

func (q *PostgresQueue) Push(ctx context.Context, intent models.DispatchIntent) error {
	payload, err := encode(intent)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO dispatch_intents (payload) VALUES ($1)`, string(payload))
	return err
}

func (q *PostgresQueue) Pop(ctx context.Context) (*models.DispatchIntent, error) {
	var payload []byte
	err := q.db.QueryRowContext(ctx, popIntentSQL).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	return decode(payload)
}

func (q *PostgresQueue) Len(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch_intents`).Scan(&n)
	return n, err
}
