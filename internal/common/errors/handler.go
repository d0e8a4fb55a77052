// internal/common/errors/handler.go
package errors

import (
	"fmt"
	"time"
)

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ErrorHandler logs failures that must not propagate: a single allocation in
// a sweep, a dropped dispatch intent, a failed or panicking scheduler tick.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle normalizes err and logs it. Non-retryable errors are logged at warn
// level, everything else at error level. The normalized error is returned so
// callers can count it.
func (h *ErrorHandler) Handle(operation string, err error, fields map[string]interface{}) *StandardError {
	if err == nil {
		return nil
	}
	stdErr := h.normalizeError(err)

	entry := map[string]interface{}{
		"operation":     operation,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range stdErr.Metadata {
		entry[k] = v
	}
	for k, v := range fields {
		entry[k] = v
	}

	if h.logger == nil {
		return stdErr
	}
	if stdErr.Retryable {
		h.logger.Error(operation+" failed", entry)
	} else {
		h.logger.Warn(operation+" failed", entry)
	}
	return stdErr
}

// Recover converts a recovered panic value into a logged StandardError.
// Call it as `defer func() { h.Recover("tick", recover(), nil) }()`.
func (h *ErrorHandler) Recover(operation string, recovered interface{}, fields map[string]interface{}) *StandardError {
	if recovered == nil {
		return nil
	}
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", recovered)
	}
	return h.Handle(operation, err, fields)
}

// normalizeError ensures we always have a StandardError
func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}
