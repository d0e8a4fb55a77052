// Package errors provides the coded error taxonomy shared by the ledger,
// scanner, dispatcher and scheduler.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotificationNotFound ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrCodePermissionDenied     ErrorCode = "PERMISSION_DENIED"
	ErrCodeDatabaseQueryFailed  ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeCollaboratorLookup   ErrorCode = "COLLABORATOR_LOOKUP_FAILED"
	ErrCodeManagerNotFound      ErrorCode = "MANAGER_NOT_FOUND"
	ErrCodeRecipientNotFound    ErrorCode = "RECIPIENT_NOT_FOUND"
	ErrCodeQueueOperationFailed ErrorCode = "QUEUE_OPERATION_FAILED"
	ErrCodeTemplateNotFound     ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateRenderFailed ErrorCode = "TEMPLATE_RENDER_FAILED"
	ErrCodeTransportSendFailed  ErrorCode = "TRANSPORT_SEND_FAILED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError reports malformed input to the ledger or query APIs.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationNotFoundError reports an unknown notification id.
func NewNotificationNotFoundError(id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationNotFound,
		Message:   "Notification not found",
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewPermissionDeniedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePermissionDenied,
		Message:   "Permission denied",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseQueryFailedError wraps a failed ledger or queue-table query.
func NewDatabaseQueryFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewCollaboratorLookupError wraps a failed read against the allocation,
// compliance-record or recipient collaborators.
func NewCollaboratorLookupError(collaborator string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCollaboratorLookup,
		Message:   fmt.Sprintf("Lookup against %s failed", collaborator),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewManagerNotFoundError(facilitatorID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeManagerNotFound,
		Message:   "Facilitator has no managing manager",
		Details:   fmt.Sprintf("facilitatorId: %s", facilitatorID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewRecipientNotFoundError(recipientType, recipientID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecipientNotFound,
		Message:   "Recipient has no email address",
		Details:   fmt.Sprintf("recipientType: %s, recipientId: %s", recipientType, recipientID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewQueueOperationFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueueOperationFailed,
		Message:   "Dispatch queue operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewTemplateNotFoundError(notificationType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "No template for notification type",
		Details:   fmt.Sprintf("type: %s", notificationType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewTemplateRenderFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateRenderFailed,
		Message:   "Template rendering failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewTransportSendFailedError wraps a mail transport failure. The engine never
// retries these itself.
func NewTransportSendFailedError(transport string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportSendFailed,
		Message:   fmt.Sprintf("Mail transport '%s' failed", transport),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard returns the first StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

func IsValidation(err error) bool {
	return IsCode(err, ErrCodeValidationFailed)
}

func IsNotFound(err error) bool {
	return IsCode(err, ErrCodeNotificationNotFound)
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "COLLABORATOR"):
		return "COLLABORATOR"
	case strings.Contains(codeStr, "QUEUE"):
		return "QUEUE"
	case strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "TRANSPORT"):
		return "DELIVERY"
	case strings.Contains(codeStr, "PERMISSION"):
		return "AUTHORIZATION"
	default:
		return "OTHER"
	}
}
