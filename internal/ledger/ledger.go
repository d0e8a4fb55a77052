// Package ledger is the durable record of notifications and the only place
// their read and delivered state changes.
package ledger

import (
	"context"
	"strings"
	"time"

	"compliance-engine/internal/common/errors"
	"compliance-engine/internal/common/logger"
	"compliance-engine/internal/common/metrics"
	"compliance-engine/internal/common/validation"
	"compliance-engine/internal/models"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

const specSchema = `{
  "type": "object",
  "required": ["recipientId", "recipientType", "type", "title"],
  "properties": {
    "recipientId":   {"type": "string", "minLength": 1},
    "recipientType": {"type": "string", "enum": ["manager", "facilitator"]},
    "type":          {"type": "string", "enum": ["reminder", "alert", "submission", "deadline"]},
    "title":         {"type": "string", "minLength": 1},
    "message":       {"type": "string"},
    "related": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id":   {"type": "string", "minLength": 1},
        "type": {"type": "string", "enum": ["allocation", "activity_tracker"]}
      }
    },
    "metadata": {"type": "object"}
  }
}`

var notificationSpecSchema = validation.MustCompileSchema(specSchema)

// DedupKey identifies an outstanding notification: an unread notification of
// Type about RelatedEntityID for WeekNumber.
type DedupKey struct {
	Type            models.NotificationType
	RelatedEntityID string
	WeekNumber      int
}

// Store persists notifications. Implementations must make every state change
// a single atomic set-once transition.
type Store interface {
	Insert(ctx context.Context, n *models.Notification) error
	// InsertIfAbsent inserts n unless an unread notification matching key
	// exists, and reports whether n was inserted.
	InsertIfAbsent(ctx context.Context, n *models.Notification, key DedupKey) (bool, error)
	Get(ctx context.Context, id string) (*models.Notification, error)
	Find(ctx context.Context, recipientID string, recipientType models.RecipientType, opts models.ListOptions) ([]*models.Notification, error)
	CountUnread(ctx context.Context, recipientID string, recipientType models.RecipientType) (int, error)
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string, recipientType models.RecipientType, at time.Time) (int, error)
	// MarkDelivered reports whether a notification with id exists.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

type Ledger struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
}

func New(store Store, log logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: logger.ForComponent(log, "ledger"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create validates spec and persists a new notification.
func (l *Ledger) Create(ctx context.Context, spec models.NotificationSpec) (*models.Notification, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	n := l.build(spec)
	if err := l.store.Insert(ctx, n); err != nil {
		return nil, errors.NewDatabaseQueryFailedError("create_notification", err)
	}
	l.created(n)
	return n, nil
}

// EnsureOutstanding creates spec unless an unread notification matching key
// already exists. The returned notification is nil when nothing was created.
func (l *Ledger) EnsureOutstanding(ctx context.Context, spec models.NotificationSpec, key DedupKey) (*models.Notification, bool, error) {
	if err := validateSpec(spec); err != nil {
		return nil, false, err
	}
	if key.RelatedEntityID == "" || !key.Type.Valid() {
		return nil, false, errors.NewValidationError("dedup key requires a type and a related entity id")
	}
	if key.WeekNumber < 1 {
		return nil, false, errors.NewValidationError("dedup key requires a week number >= 1")
	}
	n := l.build(spec)
	// stores match on the stored week, so it must agree with the key
	if n.Metadata == nil {
		n.Metadata = make(map[string]interface{})
	}
	n.Metadata[models.MetaWeekNumber] = key.WeekNumber
	created, err := l.store.InsertIfAbsent(ctx, n, key)
	if err != nil {
		return nil, false, errors.NewDatabaseQueryFailedError("ensure_notification", err)
	}
	if !created {
		return nil, false, nil
	}
	l.created(n)
	return n, true, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Notification, error) {
	n, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("get_notification", err)
	}
	if n == nil {
		return nil, errors.NewNotificationNotFoundError(id)
	}
	return n, nil
}

// FindForRecipient lists a recipient's notifications newest first.
func (l *Ledger) FindForRecipient(ctx context.Context, recipientID string, recipientType models.RecipientType, opts models.ListOptions) ([]*models.Notification, error) {
	if err := validateRecipient(recipientID, recipientType); err != nil {
		return nil, err
	}
	opts, err := NormalizeListOptions(opts)
	if err != nil {
		return nil, err
	}
	list, err := l.store.Find(ctx, recipientID, recipientType, opts)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("find_notifications", err)
	}
	return list, nil
}

func (l *Ledger) UnreadCount(ctx context.Context, recipientID string, recipientType models.RecipientType) (int, error) {
	if err := validateRecipient(recipientID, recipientType); err != nil {
		return 0, err
	}
	count, err := l.store.CountUnread(ctx, recipientID, recipientType)
	if err != nil {
		return 0, errors.NewDatabaseQueryFailedError("count_unread", err)
	}
	return count, nil
}

// MarkRead flips isRead for id when it belongs to recipientID and is still
// unread. Unknown ids, foreign ids and already-read ids all return false.
func (l *Ledger) MarkRead(ctx context.Context, id, recipientID string) (bool, error) {
	if id == "" || recipientID == "" {
		return false, nil
	}
	updated, err := l.store.MarkRead(ctx, id, recipientID, l.now().UTC())
	if err != nil {
		return false, errors.NewDatabaseQueryFailedError("mark_read", err)
	}
	if !updated {
		l.logger.Debug("Mark read was a no-op", map[string]interface{}{
			"notificationId": id,
			"recipientId":    recipientID,
		})
	}
	return updated, nil
}

func (l *Ledger) MarkAllRead(ctx context.Context, recipientID string, recipientType models.RecipientType) (int, error) {
	if err := validateRecipient(recipientID, recipientType); err != nil {
		return 0, err
	}
	count, err := l.store.MarkAllRead(ctx, recipientID, recipientType, l.now().UTC())
	if err != nil {
		return 0, errors.NewDatabaseQueryFailedError("mark_all_read", err)
	}
	return count, nil
}

// MarkDelivered records a successful external send. Repeated calls keep the
// first deliveredAt.
func (l *Ledger) MarkDelivered(ctx context.Context, id string) error {
	found, err := l.store.MarkDelivered(ctx, id, l.now().UTC())
	if err != nil {
		return errors.NewDatabaseQueryFailedError("mark_delivered", err)
	}
	if !found {
		return errors.NewNotificationNotFoundError(id)
	}
	return nil
}

// NormalizeListOptions applies the default limit and rejects out-of-range
// pagination.
func NormalizeListOptions(opts models.ListOptions) (models.ListOptions, error) {
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Limit < 1 || opts.Limit > MaxLimit {
		return opts, errors.NewValidationError("limit must be between 1 and 100")
	}
	if opts.Offset < 0 {
		return opts, errors.NewValidationError("offset must be >= 0")
	}
	return opts, nil
}

func (l *Ledger) build(spec models.NotificationSpec) *models.Notification {
	n := &models.Notification{
		ID:            uuid.New().String(),
		RecipientID:   spec.RecipientID,
		RecipientType: spec.RecipientType,
		Type:          spec.Type,
		Title:         spec.Title,
		Message:       spec.Message,
		Metadata:      copyMetadata(spec.Metadata),
		CreatedAt:     l.now().UTC(),
	}
	if spec.Related != nil {
		ref := *spec.Related
		n.Related = &ref
	}
	if spec.ScheduledFor != nil {
		at := spec.ScheduledFor.UTC()
		n.ScheduledFor = &at
	}
	return n
}

func (l *Ledger) created(n *models.Notification) {
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	l.logger.Info("Notification created", map[string]interface{}{
		"notificationId": n.ID,
		"recipientId":    n.RecipientID,
		"recipientType":  string(n.RecipientType),
		"type":           string(n.Type),
	})
}

func validateSpec(spec models.NotificationSpec) error {
	result, err := notificationSpecSchema.Validate(spec)
	if err != nil {
		return errors.NewValidationError(err.Error())
	}
	if !result.Valid {
		return errors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}

func validateRecipient(recipientID string, recipientType models.RecipientType) error {
	if recipientID == "" {
		return errors.NewValidationError("recipientId is required")
	}
	if !recipientType.Valid() {
		return errors.NewValidationError("unknown recipientType: " + string(recipientType))
	}
	return nil
}

func copyMetadata(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
