package biometric

import "context"

// Matcher submits templates to the biometric registry. One upstream attempt
// per call; the quality gate runs before this is ever reached.
type Matcher interface {
	// Match runs the request's templates through the registry in the
	// requested mode and returns one result per template.
	Match(ctx context.Context, req MatchRequest) ([]MatchResult, error)

	// Health checks if the matcher is available and responding.
	Health(ctx context.Context) error
}
