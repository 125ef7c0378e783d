package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrNotFound     ErrorType = "NOT_FOUND"
	ErrRateLimit    ErrorType = "RATE_LIMIT"
	ErrInvalidInput ErrorType = "INVALID_INPUT"
	ErrInternal     ErrorType = "INTERNAL"
	ErrUnauthorized ErrorType = "UNAUTHORIZED"
	ErrRemoteFatal  ErrorType = "REMOTE_FATAL"
)

// AppError represents an application error
type AppError struct {
	Type      ErrorType
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func isType(err error, errType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrNotFound)
}

// IsRateLimit checks if the error is a rate limit error
func IsRateLimit(err error) bool {
	return isType(err, ErrRateLimit)
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return isType(err, ErrInvalidInput)
}

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool {
	return isType(err, ErrUnauthorized)
}

// IsRemoteFatal checks if the error aborted a provisioning pipeline
func IsRemoteFatal(err error) bool {
	return isType(err, ErrRemoteFatal)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, err error) *AppError {
	return New(ErrNotFound, message, err)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return New(ErrInvalidInput, message, err)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, err error) *AppError {
	return New(ErrUnauthorized, message, err)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return New(ErrInternal, message, err)
}

// NewRemoteFatalError creates an error for a remote step without which no
// usable repository exists
func NewRemoteFatalError(message string, err error) *AppError {
	return New(ErrRemoteFatal, message, err)
}

// RunInProgressError represents an error when a run for the same subject is already active
type RunInProgressError struct {
	SubjectID string
}

func (e *RunInProgressError) Error() string {
	return fmt.Sprintf("provisioning already in progress for: %s", e.SubjectID)
}

// NewRunInProgressError creates a new RunInProgressError
func NewRunInProgressError(subjectID string) error {
	return &RunInProgressError{
		SubjectID: subjectID,
	}
}

// NotFoundError represents a not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewResourceNotFoundError creates a new NotFoundError for a specific resource
func NewResourceNotFoundError(resource, id string) error {
	return NewNotFoundError(fmt.Sprintf("%s not found", resource), &NotFoundError{
		Resource: resource,
		ID:       id,
	})
}
