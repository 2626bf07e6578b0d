// Package document holds the issued-document model, the canonical content
// representation, and the rendering collaborator boundary.
package document

import (
	"context"
	"encoding/json"
	"time"

	"veridoc/internal/secfeature"
	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
)

// Content is the structured document content handed to the rendering
// collaborator. Field order is fixed by the struct, so marshalling is
// deterministic and the canonical bytes are stable.
type Content struct {
	DocumentID    string `json:"document_id"`
	ApplicantID   string `json:"applicant_id"`
	ApplicationID string `json:"application_id"`
	DocumentType  string `json:"document_type"`
	Holder        Holder `json:"holder"`
	IssuedAt      string `json:"issued_at"` // RFC 3339
}

// Holder is the document subject's biographic block.
type Holder struct {
	FirstNames   string `json:"first_names"`
	Surname      string `json:"surname"`
	DateOfBirth  string `json:"date_of_birth"`
	PlaceOfBirth string `json:"place_of_birth,omitempty"`
	NationalID   string `json:"national_id"`
}

// Renderer turns structured content into canonical bytes. Pixel-level layout
// is the collaborator's concern; this core only needs stable bytes.
type Renderer interface {
	Render(ctx context.Context, content Content) ([]byte, error)
}

// CanonicalRenderer is the default in-process renderer: canonical JSON.
type CanonicalRenderer struct{}

// Render marshals the content deterministically.
func (CanonicalRenderer) Render(_ context.Context, content Content) ([]byte, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.KindInternal, "render document content")
	}
	return data, nil
}

// IssuedDocument is the final artifact of a successful issuance. Created
// exactly once; immutable thereafter. A correction requires a new document
// with a fresh anchor so non-repudiation is preserved.
type IssuedDocument struct {
	ID            domain.DocumentID
	ApplicantID   domain.ApplicantID
	ApplicationID domain.ApplicationID
	Bytes         []byte
	Report        *secfeature.Report
	AnchorRef     string
	Signature     string
	Receipt       string // signed issuance receipt (JWT)
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the validity window has lapsed at the given time.
func (d *IssuedDocument) Expired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}
