package identity

import (
	"context"
	"strings"
	"time"

	"veridoc/internal/platform/config"
	"veridoc/internal/upstream"
	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
)

// FixtureClient serves deterministic registry data for non-production
// environments. It is constructible only when the environment is test; the
// production wiring path never reaches it.
type FixtureClient struct {
	latency time.Duration
	records map[string]Record
}

var _ Client = (*FixtureClient)(nil)

// NewFixtureClient builds the fixture registry. Refuses to construct in
// production so the synthetic path cannot be wired there.
func NewFixtureClient(env config.Environment) (*FixtureClient, error) {
	if env.IsProduction() {
		return nil, dErrors.New(dErrors.KindConfigurationError,
			"fixture registry client is not available in production mode")
	}
	return &FixtureClient{records: fixtureRecords()}, nil
}

// WithLatency sets a simulated lookup latency to mimic real-world calls.
func (c *FixtureClient) WithLatency(d time.Duration) *FixtureClient {
	c.latency = d
	return c
}

func fixtureRecords() map[string]Record {
	return map[string]Record{
		"8001015009087": {
			NationalID:   "8001015009087",
			FirstNames:   "Jane",
			Surname:      "Doe",
			DateOfBirth:  "1980-01-01",
			PlaceOfBirth: "Cape Town",
			Citizenship:  "citizen",
			Active:       true,
		},
		"9002026009086": {
			NationalID:   "9002026009086",
			FirstNames:   "Sipho",
			Surname:      "Mokoena",
			DateOfBirth:  "1990-02-02",
			PlaceOfBirth: "Johannesburg",
			Citizenship:  "citizen",
			Active:       true,
		},
		"7503037009085": {
			NationalID:  "7503037009085",
			FirstNames:  "Thandi",
			Surname:     "Nkosi",
			DateOfBirth: "1975-03-03",
			Citizenship: "citizen",
			Active:      false, // deceased record, lookups fail verification
		},
	}
}

// LookupByID returns the fixture record for the ID, or not_found.
func (c *FixtureClient) LookupByID(ctx context.Context, nationalID domain.NationalID) (*Record, error) {
	if err := c.sleep(ctx); err != nil {
		return nil, err
	}
	record, ok := c.records[nationalID.String()]
	if !ok {
		return nil, upstream.NewError(upstream.ErrorNotFound, "fixture-registry", "citizen not found", nil)
	}
	record.CheckedAt = time.Now()
	return &record, nil
}

// SearchBiographic scores the fixture records against the given fields and
// returns the best candidate. Scoring is deliberately simple: surname and
// date of birth carry most of the weight, first names and place of birth
// refine the score.
func (c *FixtureClient) SearchBiographic(ctx context.Context, bio Biographic) (*BiographicMatch, error) {
	if err := c.sleep(ctx); err != nil {
		return nil, err
	}

	var best *Record
	var bestScore float64
	for key := range c.records {
		record := c.records[key]
		score := scoreBiographic(bio, record)
		if score > bestScore {
			bestScore = score
			r := record
			best = &r
		}
	}

	if best == nil {
		return nil, upstream.NewError(upstream.ErrorNotFound, "fixture-registry", "no biographic candidate", nil)
	}
	best.CheckedAt = time.Now()
	return &BiographicMatch{Record: best, Score: bestScore}, nil
}

// Health always reports healthy.
func (c *FixtureClient) Health(_ context.Context) error { return nil }

func (c *FixtureClient) sleep(ctx context.Context) error {
	if c.latency == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return upstream.NewError(upstream.ErrorTimeout, "fixture-registry", "lookup cancelled", ctx.Err())
	case <-time.After(c.latency):
		return nil
	}
}

func scoreBiographic(bio Biographic, record Record) float64 {
	var score float64
	if strings.EqualFold(strings.TrimSpace(bio.Surname), record.Surname) {
		score += 40
	}
	if bio.DateOfBirth == record.DateOfBirth {
		score += 35
	}
	if strings.EqualFold(strings.TrimSpace(bio.FirstNames), record.FirstNames) {
		score += 20
	}
	if bio.PlaceOfBirth != "" && strings.EqualFold(bio.PlaceOfBirth, record.PlaceOfBirth) {
		score += 5
	}
	return score
}
