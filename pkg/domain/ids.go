// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "veridoc/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing an ApplicantID where a DocumentID is expected.
type (
	ApplicantID   uuid.UUID
	ApplicationID uuid.UUID
	DocumentID    uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseApplicantID(s string) (ApplicantID, error) {
	id, err := parseUUID(s, "applicant ID")
	return ApplicantID(id), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	id, err := parseUUID(s, "application ID")
	return ApplicationID(id), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	id, err := parseUUID(s, "document ID")
	return DocumentID(id), err
}

// New functions - used when the pipeline mints fresh identifiers.

func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// String methods - for logging and debugging.

func (id ApplicantID) String() string   { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) String() string    { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id ApplicantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// parseUUID is the shared validation logic. Nil UUIDs are allowed here; use
// IsNil() at the service layer for business validation so store lookups can
// return proper "not found" errors.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.KindInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.KindInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
