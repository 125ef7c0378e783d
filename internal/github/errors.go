package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
)

// GitHubError wraps a failed object store call with the operation and the
// HTTP status it ended with. StatusCode is 0 for transport-level failures.
type GitHubError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *GitHubError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("GitHub API error (%s, status %d): %s: %v", e.Op, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("GitHub API error (%s, status %d): %s", e.Op, e.StatusCode, e.Message)
}

func (e *GitHubError) Unwrap() error {
	return e.Err
}

// RateLimitError represents when we hit GitHub's rate limits
type RateLimitError struct {
	ResetTime time.Time
	Limit     int
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("GitHub API rate limit exceeded. Reset at %v. Limit: %d, Remaining: %d",
		e.ResetTime, e.Limit, e.Remaining)
}

// ValidationError represents invalid input to GitHub client methods
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: invalid %s: %s", e.Field, e.Value)
}

// NewGitHubError creates a new GitHubError with the given status code and message
func NewGitHubError(op string, statusCode int, message string, err error) error {
	return &GitHubError{
		Op:         op,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// NewRateLimitError creates a new RateLimitError
func NewRateLimitError(resetTime time.Time, limit, remaining int) error {
	return &RateLimitError{
		ResetTime: resetTime,
		Limit:     limit,
		Remaining: remaining,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, value string) error {
	return &ValidationError{
		Field: field,
		Value: value,
	}
}

// wrapError converts an error returned by go-github into a GitHubError.
func wrapError(op string, resp *gh.Response, err error) error {
	if err == nil {
		return nil
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return &GitHubError{
			Op:         op,
			StatusCode: http.StatusForbidden,
			Message:    "rate limit exceeded",
			Err:        NewRateLimitError(rateErr.Rate.Reset.Time, rateErr.Rate.Limit, rateErr.Rate.Remaining),
		}
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	message := "request failed"
	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) {
		message = errResp.Message
		if errResp.Response != nil {
			status = errResp.Response.StatusCode
		}
	}

	return &GitHubError{Op: op, StatusCode: status, Message: message, Err: err}
}

// StatusCode returns the HTTP status of a GitHubError, or 0.
func StatusCode(err error) int {
	var ghErr *GitHubError
	if errors.As(err, &ghErr) {
		return ghErr.StatusCode
	}
	return 0
}

// IsNotFound reports a 404 from the object store.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsConflict reports a 409 from the object store.
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsUnprocessable reports a 422 from the object store.
func IsUnprocessable(err error) bool {
	return StatusCode(err) == http.StatusUnprocessableEntity
}

// IsAlreadyExists reports a 422 whose validation errors say the resource
// already exists, as returned for duplicate labels and repository names.
func IsAlreadyExists(err error) bool {
	if !IsUnprocessable(err) {
		return false
	}
	var errResp *gh.ErrorResponse
	if !errors.As(err, &errResp) {
		return false
	}
	if strings.Contains(strings.ToLower(errResp.Message), "already exists") {
		return true
	}
	for _, e := range errResp.Errors {
		if e.Code == "already_exists" || strings.Contains(strings.ToLower(e.Message), "already exists") {
			return true
		}
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	var rateErr *RateLimitError
	return errors.As(err, &rateErr)
}

// IsRetryable reports whether err is a transient failure: a transport error,
// a 5xx or a rate limit. 4xx logical errors are not retryable.
func IsRetryable(err error) bool {
	var ghErr *GitHubError
	if !errors.As(err, &ghErr) {
		return false
	}
	return ghErr.StatusCode == 0 || ghErr.StatusCode >= 500 || ghErr.StatusCode == http.StatusTooManyRequests
}
