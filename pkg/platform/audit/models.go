// Package audit defines the structured event emitted for every state
// transition and verdict in the pipeline. Events are transport-agnostic so
// stores and sinks can fan out.
package audit

import (
	"context"
	"time"
)

// Outcome records how an audited action ended.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Event is emitted from domain logic to capture key actions. Details must
// never contain full national IDs or biometric payloads; use redacted forms.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id"`
	Action    Action            `json:"action"`
	EntityID  string            `json:"entity_id"`
	Outcome   Outcome           `json:"outcome"`
	Details   map[string]string `json:"details,omitempty"`
}

// Action identifies what was attempted.
type Action string

const (
	ActionIdentityVerify  Action = "identity_verify"
	ActionBiometricVerify Action = "biometric_verify"
	ActionFeaturesApply   Action = "features_apply"
	ActionFeaturesVerify  Action = "features_verify"
	ActionDocumentAnchor  Action = "document_anchor"
	ActionDocumentIssue   Action = "document_issue"
	ActionDocumentVerify  Action = "document_verify"
	ActionTransition      Action = "state_transition"
)

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}
