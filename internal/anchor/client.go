// Package anchor integrates the trust-anchor collaborator that countersigns
// issued documents for non-repudiation.
package anchor

import (
	"context"
	"time"
)

// Record is the collaborator's countersignature over document bytes.
type Record struct {
	Reference  string
	Signature  string
	AnchoredAt time.Time
}

// Client anchors documents and later verifies those anchors.
//
//go:generate mockgen -source=client.go -destination=mocks/client_mock.go -package=mocks
type Client interface {
	// Anchor registers the document bytes and returns the countersignature.
	Anchor(ctx context.Context, docBytes []byte) (*Record, error)
	// VerifyAnchor checks that the reference exists and its signature covers
	// the given bytes.
	VerifyAnchor(ctx context.Context, reference string, docBytes []byte) (bool, error)
	Health(ctx context.Context) error
}
