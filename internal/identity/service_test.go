package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veridoc/internal/platform/config"
	"veridoc/internal/upstream"
	"veridoc/internal/verdict"
	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	audit "veridoc/pkg/platform/audit"
)

// countingClient records every registry call so tests can assert that
// malformed input never reaches the network.
type countingClient struct {
	lookupCalls int
	searchCalls int

	lookupRecord *Record
	lookupErr    error
	searchMatch  *BiographicMatch
	searchErr    error
}

func (c *countingClient) LookupByID(_ context.Context, _ domain.NationalID) (*Record, error) {
	c.lookupCalls++
	return c.lookupRecord, c.lookupErr
}

func (c *countingClient) SearchBiographic(_ context.Context, _ Biographic) (*BiographicMatch, error) {
	c.searchCalls++
	return c.searchMatch, c.searchErr
}

func (c *countingClient) Health(_ context.Context) error { return nil }

type capturingSink struct {
	events []audit.Event
}

func (s *capturingSink) Publish(_ context.Context, event audit.Event) {
	s.events = append(s.events, event)
}

func validRequest(method Method) Request {
	return Request{
		Method:     method,
		NationalID: "8001015009087",
		Biographic: Biographic{
			FirstNames:  "Jane",
			Surname:     "Doe",
			DateOfBirth: "1980-01-01",
		},
	}
}

func TestVerifyByID_MalformedIDNeverReachesRegistry(t *testing.T) {
	client := &countingClient{}
	sink := &capturingSink{}
	svc := NewService(client, sink)

	req := validRequest(MethodByID)
	req.NationalID = "not-thirteen"

	v, err := svc.Verify(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, verdict.StatusNotVerified, v.Status)
	assert.Zero(t, v.Confidence)
	assert.Contains(t, v.Discrepancies, "malformed national ID")
	assert.Zero(t, client.lookupCalls, "malformed input must not hit the registry")

	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.OutcomeFailed, sink.events[0].Outcome)
}

func TestVerifyByID_Outcomes(t *testing.T) {
	t.Run("active record verifies with lookup confidence", func(t *testing.T) {
		client := &countingClient{lookupRecord: &Record{NationalID: "8001015009087", Active: true}}
		svc := NewService(client, nil)

		v, err := svc.Verify(context.Background(), validRequest(MethodByID))
		require.NoError(t, err)
		assert.True(t, v.Verified())
		assert.Equal(t, float64(idLookupConfidence), v.Confidence)
		assert.Equal(t, verdict.MatchExact, v.MatchLevel)
		assert.Equal(t, 1, client.lookupCalls)
	})

	t.Run("missing record is a negative verdict not an error", func(t *testing.T) {
		client := &countingClient{
			lookupErr: upstream.NewError(upstream.ErrorNotFound, "registry", "no record", nil),
		}
		svc := NewService(client, nil)

		v, err := svc.Verify(context.Background(), validRequest(MethodByID))
		require.NoError(t, err)
		assert.Equal(t, verdict.StatusNotVerified, v.Status)
		assert.Zero(t, v.Confidence)
	})

	t.Run("inactive record fails verification", func(t *testing.T) {
		client := &countingClient{lookupRecord: &Record{Active: false}}
		svc := NewService(client, nil)

		v, err := svc.Verify(context.Background(), validRequest(MethodByID))
		require.NoError(t, err)
		assert.Equal(t, verdict.StatusNotVerified, v.Status)
		assert.Contains(t, v.Discrepancies, "registry record is inactive")
	})
}

func TestVerifyByID_TranslatesTransportFailures(t *testing.T) {
	tests := []struct {
		name      string
		category  upstream.ErrorCategory
		wantKind  dErrors.Kind
		retryable bool
	}{
		{"timeout", upstream.ErrorTimeout, dErrors.KindRegistryUnreachable, true},
		{"outage", upstream.ErrorOutage, dErrors.KindRegistryUnreachable, true},
		{"rate limited", upstream.ErrorRateLimited, dErrors.KindRegistryUnreachable, true},
		{"authentication", upstream.ErrorAuthentication, dErrors.KindConfigurationError, false},
		{"contract mismatch", upstream.ErrorContractMismatch, dErrors.KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &countingClient{
				lookupErr: upstream.NewError(tt.category, "registry", "boom", nil),
			}
			svc := NewService(client, nil)

			_, err := svc.Verify(context.Background(), validRequest(MethodByID))
			require.Error(t, err)
			assert.True(t, dErrors.HasKind(err, tt.wantKind))
			assert.Equal(t, tt.retryable, dErrors.IsRetryable(err))
		})
	}
}

func TestVerifyByBiographic(t *testing.T) {
	t.Run("rejects incomplete biographic fields", func(t *testing.T) {
		client := &countingClient{}
		svc := NewService(client, nil)

		req := validRequest(MethodByBiographic)
		req.Biographic.Surname = ""

		_, err := svc.Verify(context.Background(), req)
		require.Error(t, err)
		assert.True(t, dErrors.HasKind(err, dErrors.KindInvalidInput))
		assert.Zero(t, client.searchCalls)
	})

	t.Run("rejects malformed date of birth", func(t *testing.T) {
		client := &countingClient{}
		svc := NewService(client, nil)

		req := validRequest(MethodByBiographic)
		req.Biographic.DateOfBirth = "01/01/1980"

		_, err := svc.Verify(context.Background(), req)
		require.Error(t, err)
		assert.True(t, dErrors.HasKind(err, dErrors.KindInvalidInput))
	})

	t.Run("score above threshold verifies", func(t *testing.T) {
		client := &countingClient{searchMatch: &BiographicMatch{Record: &Record{}, Score: 85}}
		svc := NewService(client, nil)

		v, err := svc.Verify(context.Background(), validRequest(MethodByBiographic))
		require.NoError(t, err)
		assert.True(t, v.Verified())
		assert.Equal(t, float64(85), v.Confidence)
	})

	t.Run("score below threshold is not verified", func(t *testing.T) {
		client := &countingClient{searchMatch: &BiographicMatch{Record: &Record{}, Score: 55}}
		svc := NewService(client, nil)

		v, err := svc.Verify(context.Background(), validRequest(MethodByBiographic))
		require.NoError(t, err)
		assert.Equal(t, verdict.StatusNotVerified, v.Status)
		assert.Equal(t, float64(55), v.Confidence)
	})
}

func TestVerifyCombined(t *testing.T) {
	t.Run("takes the minimum of the two confidences", func(t *testing.T) {
		client := &countingClient{
			lookupRecord: &Record{Active: true},
			searchMatch:  &BiographicMatch{Record: &Record{}, Score: 72},
		}
		svc := NewService(client, nil)

		v, err := svc.Verify(context.Background(), validRequest(MethodCombined))
		require.NoError(t, err)
		assert.True(t, v.Verified())
		assert.Equal(t, float64(72), v.Confidence)
		assert.Equal(t, 1, client.lookupCalls)
		assert.Equal(t, 1, client.searchCalls)
	})

	t.Run("skips biographic search when ID lookup fails", func(t *testing.T) {
		client := &countingClient{
			lookupErr: upstream.NewError(upstream.ErrorNotFound, "registry", "no record", nil),
		}
		svc := NewService(client, nil)

		v, err := svc.Verify(context.Background(), validRequest(MethodCombined))
		require.NoError(t, err)
		assert.False(t, v.Verified())
		assert.Zero(t, client.searchCalls)
	})

	t.Run("biographic mismatch lowers the verdict", func(t *testing.T) {
		client := &countingClient{
			lookupRecord: &Record{Active: true},
			searchMatch:  &BiographicMatch{Record: &Record{}, Score: 40},
		}
		svc := NewService(client, nil)

		v, err := svc.Verify(context.Background(), validRequest(MethodCombined))
		require.NoError(t, err)
		assert.Equal(t, verdict.StatusNotVerified, v.Status)
		assert.Equal(t, float64(40), v.Confidence)
		assert.Contains(t, v.Discrepancies, "biographic details do not match ID record")
	})
}

func TestVerify_UnknownMethod(t *testing.T) {
	svc := NewService(&countingClient{}, nil)

	_, err := svc.Verify(context.Background(), Request{Method: Method("psychic")})
	require.Error(t, err)
	assert.True(t, dErrors.HasKind(err, dErrors.KindInvalidInput))
}

func TestFixtureClient(t *testing.T) {
	t.Run("refuses production", func(t *testing.T) {
		_, err := NewFixtureClient(config.EnvProduction)
		require.Error(t, err)
		assert.True(t, dErrors.HasKind(err, dErrors.KindConfigurationError))
	})

	t.Run("known fixture ID verifies end to end", func(t *testing.T) {
		client, err := NewFixtureClient(config.EnvTest)
		require.NoError(t, err)
		svc := NewService(client, nil)

		v, err := svc.Verify(context.Background(), validRequest(MethodByID))
		require.NoError(t, err)
		assert.True(t, v.Verified())
	})

	t.Run("deceased fixture record fails verification", func(t *testing.T) {
		client, err := NewFixtureClient(config.EnvTest)
		require.NoError(t, err)
		svc := NewService(client, nil)

		req := validRequest(MethodByID)
		req.NationalID = "7503037009085"

		v, err := svc.Verify(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, verdict.StatusNotVerified, v.Status)
	})

	t.Run("biographic search scores the matching record", func(t *testing.T) {
		client, err := NewFixtureClient(config.EnvTest)
		require.NoError(t, err)

		match, err := client.SearchBiographic(context.Background(), Biographic{
			FirstNames:   "Jane",
			Surname:      "Doe",
			DateOfBirth:  "1980-01-01",
			PlaceOfBirth: "Cape Town",
		})
		require.NoError(t, err)
		assert.Equal(t, "8001015009087", match.Record.NationalID)
		assert.Equal(t, float64(100), match.Score)
	})

	t.Run("latency respects context cancellation", func(t *testing.T) {
		client, err := NewFixtureClient(config.EnvTest)
		require.NoError(t, err)
		client.WithLatency(time.Second)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		id, err := domain.ParseNationalID("8001015009087")
		require.NoError(t, err)

		_, err = client.LookupByID(ctx, id)
		require.Error(t, err)
		assert.Equal(t, upstream.ErrorTimeout, upstream.CategoryOf(err))
	})
}
