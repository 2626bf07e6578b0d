package secfeature

import (
	"crypto/subtle"

	dErrors "veridoc/pkg/domain-errors"
)

// Verifier re-derives every marker from document bytes alone. It shares the
// issuer key with the Applier but none of its state: verification of an
// externally supplied document must be meaningful.
type Verifier struct {
	applier *Applier
}

// NewVerifier creates a verifier with the issuer key.
func NewVerifier(key []byte) (*Verifier, error) {
	applier, err := NewApplier(key)
	if err != nil {
		return nil, err
	}
	return &Verifier{applier: applier}, nil
}

// Verify parses the document and recomputes the expected payload chain,
// reporting pass/fail per feature with a specific reason. Calling Verify
// twice on the same bytes yields an identical report.
func (v *Verifier) Verify(docBytes []byte) (*Report, error) {
	env, err := parseEnvelope(docBytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.KindFeatureVerificationFailed, "document envelope is malformed")
	}

	report := newReport()

	// Index blocks by name, tracking position for order checks.
	type located struct {
		payload []byte
		pos     int
	}
	present := make(map[Feature]located, len(env.blocks))
	for i, b := range env.blocks {
		if _, known := knownFeatures()[b.name]; !known {
			report.Unknown = append(report.Unknown, string(b.name))
			continue
		}
		present[b.name] = located{payload: b.payload, pos: i}
	}

	prev := contentDigest(env.content)
	lastPos := -1
	for _, feature := range Catalogue() {
		expected, err := v.applier.derive(prev, feature)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.KindFeatureVerificationFailed, "payload derivation failed")
		}
		// The chain always advances on the expected payload so one broken
		// marker doesn't cascade false failures onto the rest.
		prev = expected

		loc, ok := present[feature]
		switch {
		case !ok:
			report.Features[feature] = Check{Passed: false, Reason: ReasonMissing}
			continue
		case len(loc.payload) != payloadSize:
			report.Features[feature] = Check{Passed: false, Reason: ReasonMalformed}
		case subtle.ConstantTimeCompare(loc.payload, expected) != 1:
			report.Features[feature] = Check{Passed: false, Reason: ReasonMismatch}
		case loc.pos <= lastPos:
			report.Features[feature] = Check{Passed: false, Reason: ReasonOutOfOrder}
		default:
			report.Features[feature] = Check{Passed: true}
		}
		lastPos = loc.pos
	}

	report.finalize()
	return report, nil
}

var knownSet = func() map[Feature]struct{} {
	set := make(map[Feature]struct{}, len(Catalogue()))
	for _, f := range Catalogue() {
		set[f] = struct{}{}
	}
	return set
}()

func knownFeatures() map[Feature]struct{} {
	return knownSet
}
