package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the hard failures callers must be able to distinguish.
var (
	// ErrNotFound is returned when a document, template or analysis does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotProcessed is returned when a document has no extraction to analyze yet.
	ErrNotProcessed = errors.New("document has not been processed")
	// ErrInvalidTemplate is returned when a template violates its structural invariants.
	ErrInvalidTemplate = errors.New("invalid requirement template")
	// ErrEmptyTemplate is returned when a template has no requirements to score against.
	ErrEmptyTemplate = errors.New("requirement template has no requirements")
)

// ServiceError represents a standardized error response
type ServiceError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeNotProcessed     = "NOT_PROCESSED"
	CodeInvalidTemplate  = "INVALID_TEMPLATE"
	CodeStorageError     = "STORAGE_ERROR"
	CodeExtractionFailed = "EXTRACTION_FAILED"
	CodeInternalServer   = "INTERNAL_SERVER_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewServiceError creates a new ServiceError with timestamp
func NewServiceError(code, message, details, requestID string) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ErrorCode maps an error returned by the services to its ServiceError code.
func ErrorCode(err error) string {
	var validationErr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNotProcessed):
		return CodeNotProcessed
	case IsTemplateError(err):
		return CodeInvalidTemplate
	case errors.As(err, &validationErr):
		return CodeInvalidInput
	default:
		return CodeInternalServer
	}
}
