// Package biometric implements the biometric matching client: template
// quality gating and 1:1 / 1:N matching against the biometric registry.
package biometric

import (
	"veridoc/internal/verdict"
	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
)

// Modality tags the biometric capture type.
type Modality string

const (
	ModalityFingerprint Modality = "fingerprint"
	ModalityFacial      Modality = "facial"
	ModalityIris        Modality = "iris"
)

// Mode selects verification against a claimed identity (1:1) or
// identification across the whole registry (1:N).
type Mode string

const (
	ModeVerification   Mode = "1:1"
	ModeIdentification Mode = "1:N"
)

// Template is one biometric sample. Templates are owned by the request that
// carries them and are never persisted beyond the verification transaction.
type Template struct {
	ID       string
	Modality Modality
	Format   string // encoding format, e.g. "ISO-19794-2"
	Data     []byte // opaque template payload
	Quality  float64
}

// MatchRequest carries one or more templates plus the matching mode.
type MatchRequest struct {
	ApplicantID domain.ApplicantID
	Mode        Mode
	ReferenceID string // claimed identity, required in 1:1 mode
	Templates   []Template
}

// Validate checks structural requirements before any quality or match work.
func (r MatchRequest) Validate() error {
	if len(r.Templates) == 0 {
		return dErrors.New(dErrors.KindInvalidInput, "at least one biometric template is required")
	}
	switch r.Mode {
	case ModeVerification:
		if r.ReferenceID == "" {
			return dErrors.New(dErrors.KindInvalidInput, "1:1 verification requires a reference person identifier")
		}
	case ModeIdentification:
		// 1:N needs no reference; the best match across the population wins.
	default:
		return dErrors.New(dErrors.KindInvalidInput, "mode must be 1:1 or 1:N")
	}
	for _, tpl := range r.Templates {
		if tpl.ID == "" {
			return dErrors.New(dErrors.KindInvalidInput, "every template needs an identifier")
		}
		switch tpl.Modality {
		case ModalityFingerprint, ModalityFacial, ModalityIris:
		default:
			return dErrors.New(dErrors.KindInvalidInput, "unknown modality for template "+tpl.ID)
		}
	}
	return nil
}

// MatchResult is the per-template outcome from the matcher.
type MatchResult struct {
	TemplateID string
	Modality   Modality
	PersonRef  string // matched person, empty when nothing matched
	Score      float64
	Quality    float64
	Detail     map[string]string // modality-specific, e.g. minutiae_count
}

// Result combines the verdict with the per-modality match evidence. In 1:N
// mode Primary is the highest-scoring result.
type Result struct {
	Verdict *verdict.Verdict
	Matches []MatchResult
	Primary *MatchResult
}
