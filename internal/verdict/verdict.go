// Package verdict holds the shared outcome model produced by every
// verification stage. Verdicts are immutable once created; a retry produces a
// new Verdict rather than mutating the old one.
package verdict

import "time"

// Status is the tri-state outcome of a verification attempt.
type Status string

const (
	// StatusVerified means the check passed above threshold.
	StatusVerified Status = "verified"

	// StatusNotVerified means the check genuinely failed: malformed input or a
	// real mismatch. This is a negative result, not an error.
	StatusNotVerified Status = "not_verified"

	// StatusInconclusive means the check could not be decided, e.g. biometric
	// input below the quality gate. The caller should resubmit better input.
	StatusInconclusive Status = "inconclusive"
)

// MatchLevel is the coarse confidence bucket derived from a numeric score.
type MatchLevel string

const (
	MatchExact    MatchLevel = "exact"    // score >= 90
	MatchProbable MatchLevel = "probable" // score >= 70
	MatchPossible MatchLevel = "possible" // score >= 50
	MatchNone     MatchLevel = "no_match" // score < 50
)

// LevelForScore buckets a confidence score in [0,100] into a MatchLevel.
func LevelForScore(score float64) MatchLevel {
	switch {
	case score >= 90:
		return MatchExact
	case score >= 70:
		return MatchProbable
	case score >= 50:
		return MatchPossible
	default:
		return MatchNone
	}
}

// Verdict is the outcome of one verification attempt.
type Verdict struct {
	Status        Status
	Confidence    float64 // 0-100 synthesis of sub-scores
	MatchLevel    MatchLevel
	Discrepancies []string
	StartedAt     time.Time
	CompletedAt   time.Time
}

// Duration returns how long the attempt took.
func (v *Verdict) Duration() time.Duration {
	return v.CompletedAt.Sub(v.StartedAt)
}

// Verified reports whether the verdict passed.
func (v *Verdict) Verified() bool {
	return v.Status == StatusVerified
}

// New builds a verdict, deriving the match level from the confidence score.
func New(status Status, confidence float64, startedAt time.Time, discrepancies ...string) *Verdict {
	return &Verdict{
		Status:        status,
		Confidence:    confidence,
		MatchLevel:    LevelForScore(confidence),
		Discrepancies: discrepancies,
		StartedAt:     startedAt,
		CompletedAt:   time.Now(),
	}
}
