// Package compliance detects allocations whose facilitator has not filed the
// current week's activity record and raises reminders and escalation alerts.
package compliance

import (
	"context"
	"fmt"
	"time"

	"compliance-engine/internal/common/errors"
	"compliance-engine/internal/common/logger"
	"compliance-engine/internal/common/metrics"
	"compliance-engine/internal/ledger"
	"compliance-engine/internal/models"
)

const DefaultGraceWeeks = 2

// NotificationWriter is the part of the ledger the scanner writes through.
type NotificationWriter interface {
	EnsureOutstanding(ctx context.Context, spec models.NotificationSpec, key ledger.DedupKey) (*models.Notification, bool, error)
}

// Enqueuer accepts dispatch intents without waiting on mail delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, intent models.DispatchIntent) error
}

type SweepResult struct {
	Week             int           `json:"week"`
	Scanned          int           `json:"scanned"`
	Compliant        int           `json:"compliant"`
	RemindersCreated int           `json:"remindersCreated"`
	AlertsCreated    int           `json:"alertsCreated"`
	Skipped          int           `json:"skipped"`
	Enqueued         int           `json:"enqueued"`
	Duration         time.Duration `json:"duration"`
}

type Option func(*Scanner)

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// WithGraceWeeks sets the default escalation threshold. Allocations carrying
// their own GraceWeeks override it.
func WithGraceWeeks(weeks int) Option {
	return func(s *Scanner) { s.graceWeeks = weeks }
}

type Scanner struct {
	allocations AllocationSource
	records     ComplianceRecords
	ledger      NotificationWriter
	enqueuer    Enqueuer
	logger      logger.Logger
	errors      *errors.ErrorHandler
	graceWeeks  int
	now         func() time.Time
}

// NewScanner wires a scanner. enqueuer may be nil, in which case no dispatch
// intents are produced.
func NewScanner(allocations AllocationSource, records ComplianceRecords, writer NotificationWriter, enqueuer Enqueuer, log logger.Logger, opts ...Option) *Scanner {
	log = logger.ForComponent(log, "compliance-scanner")
	s := &Scanner{
		allocations: allocations,
		records:     records,
		ledger:      writer,
		enqueuer:    enqueuer,
		logger:      log,
		errors:      errors.NewErrorHandler(log),
		graceWeeks:  DefaultGraceWeeks,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep checks every active allocation against the current week. A failure
// on one allocation is logged and counted as skipped; only a failure to list
// allocations, or cancellation, fails the sweep.
func (s *Scanner) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	week := WeekNumber(s.now())
	result := SweepResult{Week: week}

	allocations, err := s.allocations.ActiveAllocations(ctx)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("failed").Inc()
		return result, errors.NewCollaboratorLookupError("allocations", err)
	}

	for i := range allocations {
		alloc := &allocations[i]
		if !alloc.IsActive {
			continue
		}
		if err := ctx.Err(); err != nil {
			metrics.SweepsTotal.WithLabelValues("cancelled").Inc()
			result.Duration = time.Since(start)
			return result, err
		}
		result.Scanned++

		if err := s.processAllocation(ctx, alloc, week, &result); err != nil {
			result.Skipped++
			std := s.errors.Handle("sweep allocation", err, map[string]interface{}{
				"allocationId":  alloc.ID,
				"facilitatorId": alloc.Facilitator.ID,
				"weekNumber":    week,
			})
			metrics.AllocationsSkipped.WithLabelValues(string(std.Code)).Inc()
		}
	}

	result.Duration = time.Since(start)
	metrics.SweepsTotal.WithLabelValues("ok").Inc()
	metrics.SweepDuration.Observe(result.Duration.Seconds())
	s.logger.Info("Compliance sweep completed", map[string]interface{}{
		"week":             week,
		"scanned":          result.Scanned,
		"compliant":        result.Compliant,
		"remindersCreated": result.RemindersCreated,
		"alertsCreated":    result.AlertsCreated,
		"skipped":          result.Skipped,
		"enqueued":         result.Enqueued,
		"durationMs":       result.Duration.Milliseconds(),
	})
	return result, nil
}

func (s *Scanner) processAllocation(ctx context.Context, alloc *models.Allocation, week int, result *SweepResult) error {
	compliant, err := s.records.HasActiveRecord(ctx, alloc.ID, week)
	if err != nil {
		return errors.NewCollaboratorLookupError("compliance records", err)
	}
	if compliant {
		result.Compliant++
		return nil
	}

	reminder, created, err := s.ledger.EnsureOutstanding(ctx, reminderSpec(alloc, week), ledger.DedupKey{
		Type:            models.TypeReminder,
		RelatedEntityID: alloc.ID,
		WeekNumber:      week,
	})
	if err != nil {
		return err
	}
	if created {
		result.RemindersCreated++
		s.enqueue(ctx, reminder, alloc.Facilitator.Email, result)
	}

	if week <= alloc.GraceThreshold(s.graceWeeks) {
		return nil
	}
	if alloc.Manager == nil {
		return errors.NewManagerNotFoundError(alloc.Facilitator.ID).WithMetadata("allocationId", alloc.ID)
	}

	alert, created, err := s.ledger.EnsureOutstanding(ctx, alertSpec(alloc, week), ledger.DedupKey{
		Type:            models.TypeAlert,
		RelatedEntityID: alloc.ID,
		WeekNumber:      week,
	})
	if err != nil {
		return err
	}
	if created {
		result.AlertsCreated++
		s.enqueue(ctx, alert, alloc.Manager.Email, result)
	}
	return nil
}

// enqueue is best effort: the ledger record already exists, so a queue
// failure only costs the email.
func (s *Scanner) enqueue(ctx context.Context, n *models.Notification, email string, result *SweepResult) {
	if s.enqueuer == nil || email == "" {
		return
	}
	if err := s.enqueuer.Enqueue(ctx, models.IntentFor(n, email)); err != nil {
		s.errors.Handle("enqueue dispatch intent", err, map[string]interface{}{
			"notificationId": n.ID,
		})
		return
	}
	result.Enqueued++
}

func baseMetadata(alloc *models.Allocation, week int) map[string]interface{} {
	meta := map[string]interface{}{
		models.MetaWeekNumber:      week,
		models.MetaAllocationID:    alloc.ID,
		models.MetaFacilitatorName: alloc.Facilitator.Name,
		models.MetaModuleName:      alloc.ModuleName,
		models.MetaCohortName:      alloc.CohortName,
		models.MetaClassName:       alloc.ClassName,
	}
	if alloc.Manager != nil {
		meta[models.MetaManagerName] = alloc.Manager.Name
	}
	return meta
}

func reminderSpec(alloc *models.Allocation, week int) models.NotificationSpec {
	return models.NotificationSpec{
		RecipientID:   alloc.Facilitator.ID,
		RecipientType: models.RecipientFacilitator,
		Type:          models.TypeReminder,
		Title:         fmt.Sprintf("Week %d activity report due", week),
		Message: fmt.Sprintf("Your week %d activity report for %s has not been submitted yet.",
			week, describe(alloc)),
		Related:  &models.EntityRef{ID: alloc.ID, Type: models.EntityAllocation},
		Metadata: baseMetadata(alloc, week),
	}
}

func alertSpec(alloc *models.Allocation, week int) models.NotificationSpec {
	return models.NotificationSpec{
		RecipientID:   alloc.Manager.ID,
		RecipientType: models.RecipientManager,
		Type:          models.TypeAlert,
		Title:         fmt.Sprintf("Missing week %d activity report", week),
		Message: fmt.Sprintf("%s has not submitted the week %d activity report for %s.",
			alloc.Facilitator.Name, week, describe(alloc)),
		Related:  &models.EntityRef{ID: alloc.ID, Type: models.EntityAllocation},
		Metadata: baseMetadata(alloc, week),
	}
}

func describe(alloc *models.Allocation) string {
	out := alloc.ModuleName
	if out == "" {
		out = "allocation " + alloc.ID
	}
	if alloc.CohortName != "" {
		out += " (" + alloc.CohortName + ")"
	}
	return out
}
