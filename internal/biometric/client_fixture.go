package biometric

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"

	"veridoc/internal/platform/config"
	dErrors "veridoc/pkg/domain-errors"
)

// nonMatchMarker prefixes template payloads that the fixture treats as a
// genuine mismatch. Lets tests exercise the not_verified path deterministically.
var nonMatchMarker = []byte("nomatch:")

// FixtureMatcher produces deterministic match results for non-production
// environments. Constructible only when the environment is test.
type FixtureMatcher struct{}

var _ Matcher = (*FixtureMatcher)(nil)

// NewFixtureMatcher builds the fixture matcher, refusing production mode.
func NewFixtureMatcher(env config.Environment) (*FixtureMatcher, error) {
	if env.IsProduction() {
		return nil, dErrors.New(dErrors.KindConfigurationError,
			"fixture biometric matcher is not available in production mode")
	}
	return &FixtureMatcher{}, nil
}

// Match scores each template deterministically from its payload. Payloads
// prefixed with "nomatch:" score low; everything else scores high enough to
// clear the default threshold.
func (m *FixtureMatcher) Match(_ context.Context, req MatchRequest) ([]MatchResult, error) {
	results := make([]MatchResult, 0, len(req.Templates))
	for _, tpl := range req.Templates {
		score := 88 + float64(payloadSeed(tpl.Data)%10) // 88-97
		personRef := req.ReferenceID
		if personRef == "" {
			personRef = fmt.Sprintf("candidate-%04d", payloadSeed(tpl.Data)%10000)
		}
		if bytes.HasPrefix(tpl.Data, nonMatchMarker) {
			score = float64(payloadSeed(tpl.Data) % 30) // 0-29
			personRef = ""
		}

		results = append(results, MatchResult{
			TemplateID: tpl.ID,
			Modality:   tpl.Modality,
			PersonRef:  personRef,
			Score:      score,
			Quality:    tpl.Quality,
			Detail:     fixtureDetail(tpl, score),
		})
	}
	return results, nil
}

// Health always reports healthy.
func (m *FixtureMatcher) Health(_ context.Context) error { return nil }

func payloadSeed(data []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(data)
	return h.Sum32()
}

func fixtureDetail(tpl Template, score float64) map[string]string {
	switch tpl.Modality {
	case ModalityFingerprint:
		return map[string]string{"minutiae_count": fmt.Sprintf("%d", 20+payloadSeed(tpl.Data)%30)}
	case ModalityFacial:
		return map[string]string{"similarity_ratio": fmt.Sprintf("%.2f", score/100)}
	case ModalityIris:
		return map[string]string{"hamming_distance": fmt.Sprintf("%.3f", (100-score)/250)}
	default:
		return nil
	}
}
