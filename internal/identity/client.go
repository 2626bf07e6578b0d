package identity

import (
	"context"

	"veridoc/pkg/domain"
)

// BiographicMatch is the registry's answer to a biographic search: the best
// candidate record plus a similarity score in [0,100].
type BiographicMatch struct {
	Record *Record
	Score  float64
}

// Client queries the population registry. One call per invocation; retry
// policy lives in the orchestrator so the registry is never double-billed.
type Client interface {
	// LookupByID fetches the citizen record for a validated national ID.
	// Returns an upstream.Error with category not_found when no record exists.
	LookupByID(ctx context.Context, nationalID domain.NationalID) (*Record, error)

	// SearchBiographic finds the best-matching record for the given
	// biographic fields and scores the similarity.
	SearchBiographic(ctx context.Context, bio Biographic) (*BiographicMatch, error)

	// Health checks if the registry is available and responding.
	Health(ctx context.Context) error
}
