// Package issuance drives the document issuance pipeline: identity check,
// optional biometric check, feature embedding, anchoring, and persistence.
package issuance

import (
	"time"

	"veridoc/internal/biometric"
	"veridoc/internal/document"
	"veridoc/internal/identity"
	"veridoc/internal/verdict"
)

// State is a position in the issuance state machine.
type State string

const (
	StateStarted           State = "started"
	StateIdentityChecked   State = "identity_checked"
	StateBiometricsChecked State = "biometrics_checked"
	StateFeaturesApplied   State = "features_applied"
	StateAnchored          State = "anchored"
	StateIssued            State = "issued"
	StateFailed            State = "failed"
)

// Stage names a pipeline stage for error reports, metrics, and audit.
type Stage string

const (
	StageIdentity  Stage = "identity"
	StageBiometric Stage = "biometric"
	StageRender    Stage = "render"
	StageFeatures  Stage = "features"
	StageAnchor    Stage = "anchor"
	StagePersist   Stage = "persist"
)

// StageOutcome is the per-stage result recorded on the issuance receipt.
type StageOutcome string

const (
	StagePassed  StageOutcome = "passed"
	StageFailed  StageOutcome = "failed"
	StageSkipped StageOutcome = "skipped"
)

// Transition records one state machine step.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// IssueRequest is everything needed to issue one document. Request-scoped;
// nothing here is shared across requests.
type IssueRequest struct {
	Identity     identity.Request
	Holder       document.Holder
	DocumentType string

	// Templates are optional. When empty the biometric stage is skipped,
	// which does not count against the all-pass invariant.
	Templates     []biometric.Template
	BiometricMode biometric.Mode
}

// Result is the outcome of a successful issuance.
type Result struct {
	Document  *document.IssuedDocument
	Identity  *verdict.Verdict
	Biometric *verdict.Verdict // nil when the stage was skipped
	Outcomes  map[Stage]StageOutcome
	Trail     []Transition
}
