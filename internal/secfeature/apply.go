package secfeature

import (
	"fmt"

	"golang.org/x/crypto/blake2b"

	dErrors "veridoc/pkg/domain-errors"
)

// Applier embeds the marker catalogue into a document. Each payload is a
// keyed BLAKE2b MAC chained over its predecessor, seeded from the content
// digest, so any change to content or marker order invalidates the chain.
type Applier struct {
	key       []byte
	catalogue []Feature
}

// ApplierOption configures the Applier.
type ApplierOption func(*Applier)

// WithCatalogue overrides the marker set. Used by tests to inject failures;
// production always uses the full catalogue.
func WithCatalogue(features []Feature) ApplierOption {
	return func(a *Applier) {
		a.catalogue = features
	}
}

// NewApplier creates an applier with the issuer key. The key must fit the
// BLAKE2b keyed-hash limit (64 bytes).
func NewApplier(key []byte, opts ...ApplierOption) (*Applier, error) {
	if len(key) == 0 || len(key) > 64 {
		return nil, dErrors.New(dErrors.KindConfigurationError,
			"feature derivation key must be 1-64 bytes")
	}
	a := &Applier{key: key, catalogue: Catalogue()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Apply embeds every marker into the content, in catalogue order, and
// returns the final document bytes. A failure applying any single marker
// aborts the whole operation: a document with nine of ten markers is not a
// valid document.
func (a *Applier) Apply(content []byte) ([]byte, error) {
	if len(content) == 0 {
		return nil, dErrors.New(dErrors.KindInvalidInput, "document content is empty")
	}

	env := &envelope{content: content}
	prev := contentDigest(content)

	for _, feature := range a.catalogue {
		payload, err := a.derive(prev, feature)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.KindFeatureApplicationFailed,
				fmt.Sprintf("applying %s", feature))
		}
		env.blocks = append(env.blocks, block{name: feature, payload: payload})
		prev = payload
	}

	return env.encode(), nil
}

// derive computes one marker payload: MAC(key, prev || name).
func (a *Applier) derive(prev []byte, feature Feature) ([]byte, error) {
	if len(feature) == 0 {
		return nil, fmt.Errorf("empty feature name")
	}
	mac, err := blake2b.New256(a.key)
	if err != nil {
		return nil, err
	}
	mac.Write(prev)
	mac.Write([]byte(feature))
	return mac.Sum(nil), nil
}

// contentDigest seeds the chain from the canonical content.
func contentDigest(content []byte) []byte {
	sum := blake2b.Sum256(content)
	return sum[:]
}
