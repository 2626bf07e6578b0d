// Package upstream normalizes failures from external collaborators (population
// registry, biometric matcher, anchor store) into a common taxonomy so callers
// can make consistent retry and classification decisions regardless of the
// underlying protocol.
package upstream

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized failure taxonomy for upstream calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the collaborator took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the collaborator rejected our input
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorOutage indicates the collaborator is unavailable
	ErrorOutage ErrorCategory = "outage"

	// ErrorContractMismatch indicates the collaborator API changed shape
	ErrorContractMismatch ErrorCategory = "contract_mismatch"

	// ErrorNotFound indicates the requested record doesn't exist
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// Error wraps collaborator failures with normalized categorization. The
// Retryable flag is derived from the category so the orchestrator never
// inspects raw transport errors.
type Error struct {
	Category     ErrorCategory
	Collaborator string
	Message      string
	Underlying   error
	Retryable    bool
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Collaborator, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Collaborator, e.Category, e.Message)
}

// Unwrap supports error unwrapping
func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a normalized upstream error with automatic retry
// classification: timeouts, outages and rate limiting are transient; bad data,
// missing records, auth failures and contract mismatches are permanent.
func NewError(category ErrorCategory, collaborator, message string, underlying error) *Error {
	retryable := category == ErrorTimeout ||
		category == ErrorOutage ||
		category == ErrorRateLimited

	return &Error{
		Category:     category,
		Collaborator: collaborator,
		Message:      message,
		Underlying:   underlying,
		Retryable:    retryable,
	}
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	return false
}

// CategoryOf extracts the error category from an error
func CategoryOf(err error) ErrorCategory {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Category
	}
	return ErrorInternal
}

// IsNotFound reports whether the upstream said the record doesn't exist.
func IsNotFound(err error) bool {
	return CategoryOf(err) == ErrorNotFound
}
