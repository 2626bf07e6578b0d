// Package domainerrors defines the stable failure taxonomy for the issuance
// and verification pipeline. Kinds describe what went wrong in business terms,
// not transport terms, and carry a retry hint the caller can act on.
package domainerrors

import "errors"

// Kind represents a pipeline error category independent of transport layer.
type Kind string

const (
	// KindInvalidInput covers malformed IDs and missing fields. Not retryable.
	KindInvalidInput Kind = "invalid_input"

	// KindRegistryUnreachable covers network failures and timeouts against the
	// population registry or biometric matcher. Retryable up to the stage limit.
	KindRegistryUnreachable Kind = "registry_unreachable"

	// KindNoMatch is a genuine mismatch: a negative verdict, not a fault. Not retryable.
	KindNoMatch Kind = "no_match"

	// KindQualityGateFailed means biometric input fell below the quality
	// threshold; the caller must resubmit better input.
	KindQualityGateFailed Kind = "quality_gate_failed"

	// KindFeatureApplicationFailed names a security marker that could not be
	// applied. The document must be regenerated.
	KindFeatureApplicationFailed Kind = "feature_application_failed"

	// KindFeatureVerificationFailed names a security marker that failed
	// re-derivation from the document bytes.
	KindFeatureVerificationFailed Kind = "feature_verification_failed"

	// KindAnchorFailed means the anchor/signing collaborator was unavailable or
	// rejected the document. Retryable with backoff at the caller's discretion.
	KindAnchorFailed Kind = "anchor_failed"

	// KindConfigurationError means a credential is missing in production mode.
	// Fatal at startup, never per-request.
	KindConfigurationError Kind = "configuration_error"

	// KindInternal covers unexpected failures that fit no other kind.
	KindInternal Kind = "internal_error"
)

// retryableKinds maps each kind to its default retry hint. Only transient
// upstream conditions are worth repeating; everything else needs new input or
// a regenerated document.
var retryableKinds = map[Kind]bool{
	KindRegistryUnreachable: true,
	KindAnchorFailed:        true,
}

// Error wraps pipeline failures with a stable kind and a safe message.
// Messages must never contain national ID values or biometric payloads.
type Error struct {
	Kind       Kind
	Message    string
	Suggestion string // Human-readable hint for the caller.
	Retryable  bool
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a new pipeline error with the given kind and message.
// The retry hint is derived from the kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg, Retryable: retryableKinds[kind]}
}

// NewWithSuggestion creates a pipeline error carrying a caller-facing hint.
func NewWithSuggestion(kind Kind, msg, suggestion string) error {
	return &Error{Kind: kind, Message: msg, Suggestion: suggestion, Retryable: retryableKinds[kind]}
}

// Wrap creates a pipeline error wrapping an existing error. If the wrapped
// error is already a pipeline error, the original kind and retry hint are
// preserved so classification happens exactly once.
func Wrap(err error, kind Kind, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Kind:       existing.Kind,
			Message:    msg,
			Suggestion: existing.Suggestion,
			Retryable:  existing.Retryable,
			Err:        err,
		}
	}
	return &Error{Kind: kind, Message: msg, Retryable: retryableKinds[kind], Err: err}
}

// HasKind checks if an error is a pipeline error with the given kind.
func HasKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the kind from an error, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether a retry is sensible for this error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
