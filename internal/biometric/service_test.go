package biometric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veridoc/internal/upstream"
	"veridoc/internal/verdict"
	dErrors "veridoc/pkg/domain-errors"
)

const (
	testQualityThreshold = 60
	testMatchThreshold   = 70
)

// countingMatcher records calls so tests can assert the quality gate
// short-circuits before any matcher traffic.
type countingMatcher struct {
	calls   int
	results []MatchResult
	err     error
}

func (m *countingMatcher) Match(_ context.Context, _ MatchRequest) ([]MatchResult, error) {
	m.calls++
	return m.results, m.err
}

func (m *countingMatcher) Health(_ context.Context) error { return nil }

func goodTemplate(id string) Template {
	return Template{
		ID:       id,
		Modality: ModalityFingerprint,
		Format:   "ISO-19794-2",
		Data:     []byte("template-bytes"),
		Quality:  85,
	}
}

func matchRequest(mode Mode, templates ...Template) MatchRequest {
	return MatchRequest{
		Mode:        mode,
		ReferenceID: "8001015009087",
		Templates:   templates,
	}
}

func TestMatchRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MatchRequest)
		wantErr bool
	}{
		{"valid 1:1", func(r *MatchRequest) {}, false},
		{"no templates", func(r *MatchRequest) { r.Templates = nil }, true},
		{"1:1 without reference", func(r *MatchRequest) { r.ReferenceID = "" }, true},
		{"1:N without reference", func(r *MatchRequest) {
			r.Mode = ModeIdentification
			r.ReferenceID = ""
		}, false},
		{"unknown mode", func(r *MatchRequest) { r.Mode = Mode("2:2") }, true},
		{"template without id", func(r *MatchRequest) { r.Templates[0].ID = "" }, true},
		{"unknown modality", func(r *MatchRequest) { r.Templates[0].Modality = Modality("gait") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := matchRequest(ModeVerification, goodTemplate("t1"))
			tt.mutate(&req)

			err := req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasKind(err, dErrors.KindInvalidInput))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestVerify_QualityGate(t *testing.T) {
	t.Run("names exactly the failing templates and skips the matcher", func(t *testing.T) {
		matcher := &countingMatcher{}
		svc := NewService(matcher, testQualityThreshold, testMatchThreshold, nil)

		low := goodTemplate("thumb-left")
		low.Quality = 30
		req := matchRequest(ModeVerification, goodTemplate("thumb-right"), low)

		result, err := svc.Verify(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, verdict.StatusInconclusive, result.Verdict.Status)
		assert.Zero(t, result.Verdict.Confidence)
		require.Len(t, result.Verdict.Discrepancies, 1)
		assert.Contains(t, result.Verdict.Discrepancies[0], "thumb-left")
		assert.Zero(t, matcher.calls, "quality failures must not reach the matcher")
	})

	t.Run("quality exactly at threshold passes the gate", func(t *testing.T) {
		matcher := &countingMatcher{results: []MatchResult{{TemplateID: "t1", Score: 90}}}
		svc := NewService(matcher, testQualityThreshold, testMatchThreshold, nil)

		tpl := goodTemplate("t1")
		tpl.Quality = testQualityThreshold

		result, err := svc.Verify(context.Background(), matchRequest(ModeVerification, tpl))
		require.NoError(t, err)
		assert.True(t, result.Verdict.Verified())
		assert.Equal(t, 1, matcher.calls)
	})
}

func TestVerify_OneToOneAveragesScores(t *testing.T) {
	matcher := &countingMatcher{results: []MatchResult{
		{TemplateID: "t1", Score: 90},
		{TemplateID: "t2", Score: 60},
	}}
	svc := NewService(matcher, testQualityThreshold, testMatchThreshold, nil)

	result, err := svc.Verify(context.Background(),
		matchRequest(ModeVerification, goodTemplate("t1"), goodTemplate("t2")))
	require.NoError(t, err)

	assert.True(t, result.Verdict.Verified())
	assert.Equal(t, float64(75), result.Verdict.Confidence)
	assert.Nil(t, result.Primary, "1:1 mode has no primary candidate")
}

func TestVerify_OneToManyTakesBestCandidate(t *testing.T) {
	matcher := &countingMatcher{results: []MatchResult{
		{TemplateID: "t1", PersonRef: "person-a", Score: 65},
		{TemplateID: "t1", PersonRef: "person-b", Score: 88},
		{TemplateID: "t1", PersonRef: "person-c", Score: 42},
	}}
	svc := NewService(matcher, testQualityThreshold, testMatchThreshold, nil)

	req := matchRequest(ModeIdentification, goodTemplate("t1"))
	req.ReferenceID = ""

	result, err := svc.Verify(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Verdict.Verified())
	require.NotNil(t, result.Primary)
	assert.Equal(t, "person-b", result.Primary.PersonRef)
	assert.Equal(t, float64(88), result.Verdict.Confidence)
}

func TestVerify_BelowMatchThresholdIsNotVerified(t *testing.T) {
	matcher := &countingMatcher{results: []MatchResult{{TemplateID: "t1", Score: 50}}}
	svc := NewService(matcher, testQualityThreshold, testMatchThreshold, nil)

	result, err := svc.Verify(context.Background(), matchRequest(ModeVerification, goodTemplate("t1")))
	require.NoError(t, err)

	assert.Equal(t, verdict.StatusNotVerified, result.Verdict.Status)
	assert.Contains(t, result.Verdict.Discrepancies, "match confidence below threshold")
}

func TestVerify_TranslatesTransportFailures(t *testing.T) {
	tests := []struct {
		name     string
		category upstream.ErrorCategory
		wantKind dErrors.Kind
	}{
		{"timeout", upstream.ErrorTimeout, dErrors.KindRegistryUnreachable},
		{"outage", upstream.ErrorOutage, dErrors.KindRegistryUnreachable},
		{"authentication", upstream.ErrorAuthentication, dErrors.KindConfigurationError},
		{"bad data", upstream.ErrorBadData, dErrors.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher := &countingMatcher{
				err: upstream.NewError(tt.category, "matcher", "boom", nil),
			}
			svc := NewService(matcher, testQualityThreshold, testMatchThreshold, nil)

			_, err := svc.Verify(context.Background(), matchRequest(ModeVerification, goodTemplate("t1")))
			require.Error(t, err)
			assert.True(t, dErrors.HasKind(err, tt.wantKind))
		})
	}
}
