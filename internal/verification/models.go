// Package verification re-verifies previously issued documents. It is the
// single verification path: the same identity, biometric-independent
// feature, and anchor checks used at issuance, never a looser copy.
package verification

import (
	"veridoc/internal/identity"
	"veridoc/internal/secfeature"
	"veridoc/internal/verdict"
	"veridoc/pkg/domain"
)

// Check names one of the independent re-verification checks.
type Check string

const (
	CheckFeatures Check = "features"
	CheckAnchor   Check = "anchor"
	CheckIdentity Check = "identity"
	CheckReceipt  Check = "receipt"
)

// Evidence is what a caller submits for re-verification: either a stored
// document by ID, or externally supplied bytes with their anchor reference.
type Evidence struct {
	DocumentID domain.DocumentID

	DocumentBytes []byte
	AnchorRef     string
	Receipt       string

	// Identity optionally overrides the re-confirmation request. When empty
	// it is reconstructed from the document's own content.
	Identity *identity.Request
}

// CheckResult is the outcome of one independent check.
type CheckResult struct {
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Outcome combines the independent checks into one verdict. Valid is true
// only when every performed check passed; the receipt check runs only when
// a receipt is available.
type Outcome struct {
	Valid         bool
	Verdict       *verdict.Verdict
	Checks        map[Check]CheckResult
	Features      *secfeature.Report
	AnchorRef     string
	Discrepancies []string
}
