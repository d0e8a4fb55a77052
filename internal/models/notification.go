// internal/models/notification.go
package models

import (
	"strconv"
	"time"
)

type RecipientType string

const (
	RecipientManager     RecipientType = "manager"
	RecipientFacilitator RecipientType = "facilitator"
)

func (r RecipientType) Valid() bool {
	return r == RecipientManager || r == RecipientFacilitator
}

type NotificationType string

const (
	TypeReminder   NotificationType = "reminder"
	TypeAlert      NotificationType = "alert"
	TypeSubmission NotificationType = "submission"
	TypeDeadline   NotificationType = "deadline"
)

func (t NotificationType) Valid() bool {
	switch t {
	case TypeReminder, TypeAlert, TypeSubmission, TypeDeadline:
		return true
	}
	return false
}

// EntityType discriminates the weak reference carried by a notification.
type EntityType string

const (
	EntityAllocation      EntityType = "allocation"
	EntityActivityTracker EntityType = "activity_tracker"
)

func (e EntityType) Valid() bool {
	return e == EntityAllocation || e == EntityActivityTracker
}

// EntityRef points at the record that triggered a notification. The target
// may have been deleted since; resolve it through a collaborator when needed.
type EntityRef struct {
	ID   string     `json:"id"`
	Type EntityType `json:"type"`
}

// Metadata keys understood by templates and the dedup check.
const (
	MetaWeekNumber      = "weekNumber"
	MetaAllocationID    = "allocationId"
	MetaFacilitatorName = "facilitatorName"
	MetaManagerName     = "managerName"
	MetaModuleName      = "moduleName"
	MetaCohortName      = "cohortName"
	MetaClassName       = "className"
)

// Notification is immutable after creation apart from the read and delivered
// state pairs, each of which only ever moves from false to true.
type Notification struct {
	ID            string                 `json:"id"`
	RecipientID   string                 `json:"recipientId"`
	RecipientType RecipientType          `json:"recipientType"`
	Type          NotificationType       `json:"type"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	Related       *EntityRef             `json:"related,omitempty"`
	IsRead        bool                   `json:"isRead"`
	ReadAt        *time.Time             `json:"readAt,omitempty"`
	IsDelivered   bool                   `json:"isDelivered"`
	DeliveredAt   *time.Time             `json:"deliveredAt,omitempty"`
	ScheduledFor  *time.Time             `json:"scheduledFor,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// WeekNumber returns metadata.weekNumber, or 0 when absent. Values decoded
// from JSON arrive as float64, so numeric strings and floats are accepted.
func (n *Notification) WeekNumber() int {
	return MetadataInt(n.Metadata, MetaWeekNumber)
}

// DueAt reports whether the notification may be dispatched at now.
func (n *Notification) DueAt(now time.Time) bool {
	return n.ScheduledFor == nil || !n.ScheduledFor.After(now)
}

// NotificationSpec is the input to ledger creation.
type NotificationSpec struct {
	RecipientID   string                 `json:"recipientId"`
	RecipientType RecipientType          `json:"recipientType"`
	Type          NotificationType       `json:"type"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	Related       *EntityRef             `json:"related,omitempty"`
	ScheduledFor  *time.Time             `json:"scheduledFor,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type ListOptions struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	UnreadOnly bool `json:"unreadOnly"`
}

func MetadataInt(meta map[string]interface{}, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func MetadataString(meta map[string]interface{}, key string) string {
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}
