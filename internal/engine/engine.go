// Package engine is the request-facing surface of the compliance and
// notification engine. The HTTP layer calls it with the identity supplied by
// its auth middleware.
package engine

import (
	"context"
	"fmt"

	"compliance-engine/internal/common/errors"
	"compliance-engine/internal/common/logger"
	"compliance-engine/internal/compliance"
	"compliance-engine/internal/ledger"
	"compliance-engine/internal/models"
)

// Caller is the authenticated identity making a request.
type Caller struct {
	RecipientID   string               `json:"recipientId"`
	RecipientType models.RecipientType `json:"recipientType"`
}

type ListResult struct {
	Notifications []*models.Notification `json:"notifications"`
	UnreadCount   int                    `json:"unreadCount"`
}

// SubmissionEvent is raised by the CRUD layer when a facilitator files a
// weekly activity record.
type SubmissionEvent struct {
	TrackerID       string        `json:"trackerId"`
	AllocationID    string        `json:"allocationId"`
	WeekNumber      int           `json:"weekNumber"`
	FacilitatorID   string        `json:"facilitatorId"`
	FacilitatorName string        `json:"facilitatorName"`
	ModuleName      string        `json:"moduleName"`
	Manager         models.Person `json:"manager"`
}

type NotificationLedger interface {
	Create(ctx context.Context, spec models.NotificationSpec) (*models.Notification, error)
	FindForRecipient(ctx context.Context, recipientID string, recipientType models.RecipientType, opts models.ListOptions) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, recipientID string, recipientType models.RecipientType) (int, error)
	MarkRead(ctx context.Context, id, recipientID string) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string, recipientType models.RecipientType) (int, error)
}

type SweepTrigger interface {
	TriggerNow(ctx context.Context) (compliance.SweepResult, error)
}

var _ NotificationLedger = (*ledger.Ledger)(nil)

type Engine struct {
	ledger   NotificationLedger
	trigger  SweepTrigger
	enqueuer compliance.Enqueuer
	logger   logger.Logger
	errors   *errors.ErrorHandler
}

func New(l NotificationLedger, trigger SweepTrigger, enqueuer compliance.Enqueuer, log logger.Logger) *Engine {
	log = logger.ForComponent(log, "engine")
	return &Engine{
		ledger:   l,
		trigger:  trigger,
		enqueuer: enqueuer,
		logger:   log,
		errors:   errors.NewErrorHandler(log),
	}
}

// ListNotifications returns a page of the caller's notifications, newest
// first, with the unread total across all pages.
func (e *Engine) ListNotifications(ctx context.Context, caller Caller, opts models.ListOptions) (*ListResult, error) {
	list, err := e.ledger.FindForRecipient(ctx, caller.RecipientID, caller.RecipientType, opts)
	if err != nil {
		return nil, err
	}
	unread, err := e.ledger.UnreadCount(ctx, caller.RecipientID, caller.RecipientType)
	if err != nil {
		return nil, err
	}
	return &ListResult{Notifications: list, UnreadCount: unread}, nil
}

func (e *Engine) UnreadCount(ctx context.Context, caller Caller) (int, error) {
	return e.ledger.UnreadCount(ctx, caller.RecipientID, caller.RecipientType)
}

// MarkRead reports whether the notification moved to read. Unknown, foreign
// and already-read ids return false without error.
func (e *Engine) MarkRead(ctx context.Context, caller Caller, id string) (bool, error) {
	return e.ledger.MarkRead(ctx, id, caller.RecipientID)
}

func (e *Engine) MarkAllRead(ctx context.Context, caller Caller) (int, error) {
	return e.ledger.MarkAllRead(ctx, caller.RecipientID, caller.RecipientType)
}

// TriggerComplianceSweep runs a sweep now on behalf of a manager.
func (e *Engine) TriggerComplianceSweep(ctx context.Context, caller Caller) (compliance.SweepResult, error) {
	if caller.RecipientType != models.RecipientManager {
		return compliance.SweepResult{}, errors.NewPermissionDeniedError("only managers may trigger a compliance sweep")
	}
	e.logger.Info("Compliance sweep requested", map[string]interface{}{"managerId": caller.RecipientID})
	return e.trigger.TriggerNow(ctx)
}

// RecordSubmission notifies the allocation's manager that a weekly record
// was filed and queues the email.
func (e *Engine) RecordSubmission(ctx context.Context, ev SubmissionEvent) (*models.Notification, error) {
	if ev.Manager.ID == "" {
		return nil, errors.NewManagerNotFoundError(ev.FacilitatorID)
	}
	related := &models.EntityRef{ID: ev.TrackerID, Type: models.EntityActivityTracker}
	if ev.TrackerID == "" {
		related = &models.EntityRef{ID: ev.AllocationID, Type: models.EntityAllocation}
	}

	n, err := e.ledger.Create(ctx, models.NotificationSpec{
		RecipientID:   ev.Manager.ID,
		RecipientType: models.RecipientManager,
		Type:          models.TypeSubmission,
		Title:         fmt.Sprintf("Week %d activity report submitted", ev.WeekNumber),
		Message: fmt.Sprintf("%s submitted the week %d activity report for %s.",
			ev.FacilitatorName, ev.WeekNumber, ev.ModuleName),
		Related: related,
		Metadata: map[string]interface{}{
			models.MetaWeekNumber:      ev.WeekNumber,
			models.MetaAllocationID:    ev.AllocationID,
			models.MetaFacilitatorName: ev.FacilitatorName,
			models.MetaManagerName:     ev.Manager.Name,
			models.MetaModuleName:      ev.ModuleName,
		},
	})
	if err != nil {
		return nil, err
	}

	if e.enqueuer != nil {
		if err := e.enqueuer.Enqueue(ctx, models.IntentFor(n, ev.Manager.Email)); err != nil {
			e.errors.Handle("enqueue submission email", err, map[string]interface{}{"notificationId": n.ID})
		}
	}
	return n, nil
}
