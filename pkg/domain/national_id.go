package domain

import (
	dErrors "veridoc/pkg/domain-errors"
)

// NationalIDLength is the fixed length of a national identity number.
const NationalIDLength = 13

// NationalID is a validated national identity number. The zero value is
// invalid; construct via ParseNationalID at trust boundaries.
type NationalID struct {
	value string
}

// ParseNationalID validates the raw input: exactly 13 numeric characters.
// Malformed input is rejected before any network call is made.
func ParseNationalID(s string) (NationalID, error) {
	if s == "" {
		return NationalID{}, dErrors.New(dErrors.KindInvalidInput, "national ID cannot be empty")
	}
	if len(s) != NationalIDLength {
		return NationalID{}, dErrors.New(dErrors.KindInvalidInput, "national ID must be 13 digits")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return NationalID{}, dErrors.New(dErrors.KindInvalidInput, "national ID must be numeric")
		}
	}
	return NationalID{value: s}, nil
}

// String returns the full value. Never log this directly; use Redacted.
func (n NationalID) String() string { return n.value }

// IsZero reports whether the ID was never set.
func (n NationalID) IsZero() bool { return n.value == "" }

// Redacted returns a log-safe form keeping only the birth-date prefix
// (first six digits), e.g. "800101*******".
func (n NationalID) Redacted() string {
	if n.value == "" {
		return ""
	}
	return n.value[:6] + "*******"
}
