package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"compliance-engine/internal/models"
)

const notificationColumns = `id, recipient_id, recipient_type, type, title, message, related_entity_id, related_entity_type,
	is_read, read_at, is_delivered, delivered_at, scheduled_for, metadata, created_at`

const insertNotificationSQL = `INSERT INTO notifications (id, recipient_id, recipient_type, type, title, message,
	related_entity_id, related_entity_type, scheduled_for, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// The unique partial index on outstanding reminders and alerts backs the
// NOT EXISTS check when two sweeps race across processes.
const insertIfAbsentSQL = `INSERT INTO notifications (id, recipient_id, recipient_type, type, title, message,
	related_entity_id, related_entity_type, scheduled_for, metadata, created_at)
	SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::text, $8::text, $9::timestamptz, $10::jsonb, $11::timestamptz
	WHERE NOT EXISTS (
		SELECT 1 FROM notifications
		WHERE type = $4::text AND related_entity_id = $7::text AND is_read = FALSE
		AND metadata->>'weekNumber' = $12::text
	)
	ON CONFLICT DO NOTHING
	RETURNING id`

// PostgresStore is the production Store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, n *models.Notification) error {
	args, err := insertArgs(n)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertNotificationSQL, args...)
	return err
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, n *models.Notification, key DedupKey) (bool, error) {
	args, err := insertArgs(n)
	if err != nil {
		return false, err
	}
	args = append(args, strconv.Itoa(key.WeekNumber))

	var id string
	err = s.db.QueryRowContext(ctx, insertIfAbsentSQL, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

func (s *PostgresStore) Find(ctx context.Context, recipientID string, recipientType models.RecipientType, opts models.ListOptions) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1 AND recipient_type = $2`
	if opts.UnreadOnly {
		query += ` AND is_read = FALSE`
	}
	// seq follows insertion order, matching the memory store's tie-break
	query += ` ORDER BY created_at DESC, seq DESC LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, recipientID, string(recipientType), opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Notification, 0, opts.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountUnread(ctx context.Context, recipientID string, recipientType models.RecipientType) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND recipient_type = $2 AND is_read = FALSE`,
		recipientID, string(recipientType)).Scan(&count)
	return count, err
}

func (s *PostgresStore) MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $3 WHERE id = $1 AND recipient_id = $2 AND is_read = FALSE`,
		id, recipientID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, recipientID string, recipientType models.RecipientType, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $3 WHERE recipient_id = $1 AND recipient_type = $2 AND is_read = FALSE`,
		recipientID, string(recipientType), at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_delivered = TRUE, delivered_at = COALESCE(delivered_at, $2) WHERE id = $1`,
		id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n                          models.Notification
		recipientType, nType       string
		relatedID, relatedType     sql.NullString
		readAt, deliveredAt, sched sql.NullTime
		metadata                   []byte
	)
	err := row.Scan(&n.ID, &n.RecipientID, &recipientType, &nType, &n.Title, &n.Message,
		&relatedID, &relatedType, &n.IsRead, &readAt, &n.IsDelivered, &deliveredAt, &sched,
		&metadata, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.RecipientType = models.RecipientType(recipientType)
	n.Type = models.NotificationType(nType)
	if relatedID.Valid {
		n.Related = &models.EntityRef{ID: relatedID.String, Type: models.EntityType(relatedType.String)}
	}
	n.ReadAt = nullTime(readAt)
	n.DeliveredAt = nullTime(deliveredAt)
	n.ScheduledFor = nullTime(sched)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", n.ID, err)
		}
	}
	return &n, nil
}

func insertArgs(n *models.Notification) ([]interface{}, error) {
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	var relatedID, relatedType sql.NullString
	if n.Related != nil {
		relatedID = sql.NullString{String: n.Related.ID, Valid: true}
		relatedType = sql.NullString{String: string(n.Related.Type), Valid: true}
	}
	var scheduled sql.NullTime
	if n.ScheduledFor != nil {
		scheduled = sql.NullTime{Time: *n.ScheduledFor, Valid: true}
	}

	return []interface{}{
		n.ID, n.RecipientID, string(n.RecipientType), string(n.Type), n.Title, n.Message,
		relatedID, relatedType, scheduled, string(encoded), n.CreatedAt,
	}, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
