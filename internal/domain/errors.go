package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code          string    `json:"code"`
	Summary       string    `json:"error"`
	Message       string    `json:"message"`
	Details       string    `json:"details,omitempty"`
	Field         string    `json:"field,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrValidation     = "VALIDATION_ERROR"
	ErrInference      = "INFERENCE_ERROR"
	ErrNotFoundCode   = "NOT_FOUND"
	ErrOutOfRangeCode = "OUT_OF_RANGE"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, summary, message, details, correlationID string) *APIError {
	return &APIError{
		Code:          code,
		Summary:       summary,
		Message:       message,
		Details:       details,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewMissingFieldError reports an absent or null required field.
func NewMissingFieldError(field string) *ValidationError {
	return NewValidationError(field, fmt.Sprintf("Missing required field: %s", field), nil)
}

// InferenceKind identifies how a prediction call failed.
type InferenceKind string

const (
	InferenceProcessFailed   InferenceKind = "process_failed"
	InferenceMalformedOutput InferenceKind = "malformed_output"
	InferenceLaunchFailed    InferenceKind = "launch_failed"
	InferenceTimeout         InferenceKind = "timeout"
	InferenceUnavailable     InferenceKind = "unavailable"
)

// InferenceError is returned by predictors. Detail carries the collaborator's
// stderr (ProcessFailed) or a short description.
type InferenceError struct {
	Kind   InferenceKind
	Detail string
	Err    error
}

func (e *InferenceError) Error() string {
	msg := fmt.Sprintf("inference %s", e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InferenceError) Unwrap() error { return e.Err }

// NewInferenceError creates a new InferenceError
func NewInferenceError(kind InferenceKind, detail string, err error) *InferenceError {
	return &InferenceError{Kind: kind, Detail: detail, Err: err}
}

// IsInferenceKind reports whether err is an InferenceError of the given kind.
func IsInferenceKind(err error, kind InferenceKind) bool {
	var ie *InferenceError
	return errors.As(err, &ie) && ie.Kind == kind
}

// ErrNotFound is matched by NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a lookup that matched nothing.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No diagnosis found for %s: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// OutOfRangeError reports a positional index outside the stored history.
type OutOfRangeError struct {
	Index  int
	Length int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Length)
}
