// Package dispatch drains the queue of dispatch intents and emails the
// corresponding ledger notifications.
package dispatch

import (
	"context"
	stderrors "errors"
	"time"

	"compliance-engine/internal/common/errors"
	"compliance-engine/internal/common/logger"
	"compliance-engine/internal/common/metrics"
	"compliance-engine/internal/mail"
	"compliance-engine/internal/models"
	"compliance-engine/internal/queue"

	"github.com/google/uuid"
)

const (
	DefaultBatchSize   = 10
	DefaultSendTimeout = 10 * time.Second
)

// Drain outcomes, also used as the dispatch_attempts_total label.
const (
	OutcomeDelivered = "delivered"
	OutcomeDeferred  = "deferred"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

// NotificationStore is the part of the ledger the dispatcher needs.
type NotificationStore interface {
	Get(ctx context.Context, id string) (*models.Notification, error)
	MarkDelivered(ctx context.Context, id string) error
}

type DrainResult struct {
	Popped    int   `json:"popped"`
	Delivered int   `json:"delivered"`
	Deferred  int   `json:"deferred"`
	Dropped   int   `json:"dropped"`
	Failed    int   `json:"failed"`
	Remaining int64 `json:"remaining"`
}

type Option func(*Dispatcher)

func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

type Dispatcher struct {
	queue       queue.Queue
	ledger      NotificationStore
	directory   RecipientDirectory
	transport   mail.Transport
	renderer    *Renderer
	logger      logger.Logger
	errors      *errors.ErrorHandler
	batchSize   int
	sendTimeout time.Duration
	now         func() time.Time
}

// New wires a dispatcher. directory may be nil when every intent carries an
// email address.
func New(q queue.Queue, store NotificationStore, directory RecipientDirectory, transport mail.Transport, renderer *Renderer, log logger.Logger, opts ...Option) *Dispatcher {
	log = logger.ForComponent(log, "dispatcher")
	d := &Dispatcher{
		queue:       q,
		ledger:      store,
		directory:   directory,
		transport:   transport,
		renderer:    renderer,
		logger:      log,
		errors:      errors.NewErrorHandler(log),
		batchSize:   DefaultBatchSize,
		sendTimeout: DefaultSendTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue stamps intent with an id and timestamp and pushes it. It never
// waits on the mail transport.
func (d *Dispatcher) Enqueue(ctx context.Context, intent models.DispatchIntent) error {
	if intent.NotificationID == "" {
		return errors.NewValidationError("dispatch intent requires a notificationId")
	}
	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	if intent.Timestamp.IsZero() {
		intent.Timestamp = d.now().UTC()
	}
	if err := d.queue.Push(ctx, intent); err != nil {
		return errors.NewQueueOperationFailedError("push", err)
	}
	return nil
}

// Drain pops up to the batch size and processes each intent once. Intents
// that are not yet due go back on the queue after the batch so one drain
// never sees them twice.
func (d *Dispatcher) Drain(ctx context.Context) (DrainResult, error) {
	var (
		result   DrainResult
		deferred []models.DispatchIntent
		drainErr error
	)

	for i := 0; i < d.batchSize; i++ {
		if err := ctx.Err(); err != nil {
			drainErr = err
			break
		}
		intent, err := d.queue.Pop(ctx)
		if stderrors.Is(err, queue.ErrEmpty) {
			break
		}
		if err != nil {
			drainErr = errors.NewQueueOperationFailedError("pop", err)
			break
		}
		result.Popped++

		outcome := d.dispatch(ctx, intent)
		metrics.DispatchAttempts.WithLabelValues(outcome).Inc()
		switch outcome {
		case OutcomeDelivered:
			result.Delivered++
		case OutcomeDeferred:
			result.Deferred++
			deferred = append(deferred, *intent)
		case OutcomeFailed:
			result.Failed++
		default:
			result.Dropped++
		}
	}

	for _, intent := range deferred {
		if err := d.queue.Push(context.Background(), intent); err != nil {
			d.errors.Handle("requeue deferred intent", errors.NewQueueOperationFailedError("push", err),
				map[string]interface{}{"intentId": intent.ID, "notificationId": intent.NotificationID})
		}
	}

	if n, err := d.queue.Len(context.Background()); err == nil {
		result.Remaining = n
		metrics.DispatchQueueDepth.Set(float64(n))
	}

	if result.Popped > 0 {
		d.logger.Info("Dispatch drain completed", map[string]interface{}{
			"popped":    result.Popped,
			"delivered": result.Delivered,
			"deferred":  result.Deferred,
			"dropped":   result.Dropped,
			"failed":    result.Failed,
			"remaining": result.Remaining,
		})
	}
	return result, drainErr
}

func (d *Dispatcher) dispatch(ctx context.Context, intent *models.DispatchIntent) string {
	fields := map[string]interface{}{
		"intentId":       intent.ID,
		"notificationId": intent.NotificationID,
		"recipientId":    intent.RecipientID,
		"type":           string(intent.Type),
	}

	n, err := d.ledger.Get(ctx, intent.NotificationID)
	if err != nil {
		if errors.IsNotFound(err) {
			d.errors.Handle("load notification", err, fields)
			return OutcomeDropped
		}
		// ledger unavailable; keep the intent for the next drain
		d.errors.Handle("load notification", err, fields)
		return OutcomeDeferred
	}
	if n.IsDelivered {
		return OutcomeDuplicate
	}
	if !n.DueAt(d.now()) {
		return OutcomeDeferred
	}

	email := intent.Email
	if email == "" && d.directory != nil {
		email, err = d.directory.EmailFor(ctx, n.RecipientID, n.RecipientType)
		if err != nil {
			d.errors.Handle("resolve recipient", errors.NewCollaboratorLookupError("recipient directory", err), fields)
			return OutcomeDropped
		}
	}
	if email == "" {
		d.errors.Handle("resolve recipient", errors.NewRecipientNotFoundError(string(n.RecipientType), n.RecipientID), fields)
		return OutcomeDropped
	}

	subject, body, err := d.renderer.Render(n)
	if err != nil {
		d.errors.Handle("render template", err, fields)
		return OutcomeDropped
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	if err := d.transport.Send(sendCtx, email, subject, body); err != nil {
		d.errors.Handle("send email", errors.NewTransportSendFailedError(d.transport.Name(), err), fields)
		return OutcomeFailed
	}

	if err := d.ledger.MarkDelivered(ctx, n.ID); err != nil {
		d.errors.Handle("mark delivered", err, fields)
	}
	d.logger.Debug("Notification emailed", fields)
	return OutcomeDelivered
}
