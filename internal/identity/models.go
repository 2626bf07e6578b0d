// Package identity implements the population registry client: biographic and
// national-ID verification against the authoritative citizen registry.
package identity

import (
	"strings"
	"time"

	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
)

// Method selects how an applicant's identity is confirmed.
type Method string

const (
	// MethodByID confirms identity by national-ID number alone.
	MethodByID Method = "by_id"

	// MethodByBiographic confirms identity by name, surname and date of birth.
	MethodByBiographic Method = "by_biographic"

	// MethodCombined runs by_id first and, only if verified, additionally runs
	// by_biographic, taking the minimum of the two confidences.
	MethodCombined Method = "combined"
)

// Biographic carries the fields used for a biographic registry search.
type Biographic struct {
	FirstNames   string
	Surname      string
	DateOfBirth  string // YYYY-MM-DD
	PlaceOfBirth string // optional
}

// Validate checks the mandatory biographic fields.
func (b Biographic) Validate() error {
	if strings.TrimSpace(b.FirstNames) == "" {
		return dErrors.New(dErrors.KindInvalidInput, "first names are required for biographic verification")
	}
	if strings.TrimSpace(b.Surname) == "" {
		return dErrors.New(dErrors.KindInvalidInput, "surname is required for biographic verification")
	}
	if strings.TrimSpace(b.DateOfBirth) == "" {
		return dErrors.New(dErrors.KindInvalidInput, "date of birth is required for biographic verification")
	}
	if _, err := time.Parse("2006-01-02", b.DateOfBirth); err != nil {
		return dErrors.New(dErrors.KindInvalidInput, "date of birth must be YYYY-MM-DD")
	}
	return nil
}

// Request is an immutable identity verification request. Created once at the
// start of issuance and never mutated.
type Request struct {
	ApplicantID   domain.ApplicantID
	ApplicationID domain.ApplicationID
	Method        Method
	NationalID    string // raw input, validated before any network call
	Biographic    Biographic
}

// Record is a citizen record returned by the registry.
type Record struct {
	NationalID   string
	FirstNames   string
	Surname      string
	DateOfBirth  string
	PlaceOfBirth string
	Citizenship  string
	Active       bool // record exists and is not deceased/revoked
	CheckedAt    time.Time
}
