// internal/models/intent.go
package models

import "time"

// DispatchIntent is the queued request to email a recipient about a ledger
// notification. It lives only in the queue until a dispatcher consumes it.
type DispatchIntent struct {
	ID             string           `json:"id"`
	Type           NotificationType `json:"type"`
	NotificationID string           `json:"notificationId"`
	RecipientID    string           `json:"recipientId"`
	RecipientType  RecipientType    `json:"recipientType"`
	Email          string           `json:"email,omitempty"`
	AllocationID   string           `json:"allocationId,omitempty"`
	WeekNumber     int              `json:"weekNumber,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// IntentFor builds the dispatch intent for a freshly created notification.
func IntentFor(n *Notification, email string) DispatchIntent {
	intent := DispatchIntent{
		Type:           n.Type,
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		RecipientType:  n.RecipientType,
		Email:          email,
		AllocationID:   MetadataString(n.Metadata, MetaAllocationID),
		WeekNumber:     n.WeekNumber(),
	}
	if intent.AllocationID == "" && n.Related != nil && n.Related.Type == EntityAllocation {
		intent.AllocationID = n.Related.ID
	}
	return intent
}
