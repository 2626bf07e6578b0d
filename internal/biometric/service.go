package biometric

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"veridoc/internal/upstream"
	"veridoc/internal/verdict"
	dErrors "veridoc/pkg/domain-errors"
	audit "veridoc/pkg/platform/audit"
	"veridoc/pkg/requestcontext"
)

// AuditSink receives one event per matcher call.
type AuditSink interface {
	Publish(ctx context.Context, event audit.Event)
}

// Service runs the quality gate and drives the matcher. Thresholds are fixed
// at construction from process config; nothing mutates them per request.
type Service struct {
	matcher          Matcher
	qualityThreshold float64
	matchThreshold   float64
	sink             AuditSink
	logger           *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a biometric verification service.
func NewService(matcher Matcher, qualityThreshold, matchThreshold float64, sink AuditSink, opts ...Option) *Service {
	s := &Service{
		matcher:          matcher,
		qualityThreshold: qualityThreshold,
		matchThreshold:   matchThreshold,
		sink:             sink,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify gates template quality, then matches.
//
// If any template fails the quality gate the verdict is inconclusive and
// names exactly the failing templates; no match attempt is made, so a bad
// capture can never be misreported as a non-match. Scores below the match
// threshold yield not_verified; only quality failures are inconclusive.
func (s *Service) Verify(ctx context.Context, req MatchRequest) (*Result, error) {
	started := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if failing := s.qualityFailures(req.Templates); len(failing) > 0 {
		s.audit(ctx, req, audit.OutcomeCompleted, started, map[string]string{
			"result":            "quality_gate_failed",
			"failing_templates": fmt.Sprintf("%d", len(failing)),
		})
		return &Result{
			Verdict: verdict.New(verdict.StatusInconclusive, 0, started, failing...),
		}, nil
	}

	s.audit(ctx, req, audit.OutcomeStarted, started, map[string]string{
		"mode":      string(req.Mode),
		"templates": fmt.Sprintf("%d", len(req.Templates)),
	})

	matches, err := s.matcher.Match(ctx, req)
	if err != nil {
		s.audit(ctx, req, audit.OutcomeFailed, started, map[string]string{
			"category": string(upstream.CategoryOf(err)),
		})
		return nil, translateUpstream(err)
	}

	result := s.score(req, matches, started)

	s.audit(ctx, req, audit.OutcomeCompleted, started, map[string]string{
		"result":     string(result.Verdict.Status),
		"confidence": fmt.Sprintf("%.1f", result.Verdict.Confidence),
	})
	return result, nil
}

// qualityFailures returns one entry per template below the quality threshold.
func (s *Service) qualityFailures(templates []Template) []string {
	var failing []string
	for _, tpl := range templates {
		if tpl.Quality < s.qualityThreshold {
			failing = append(failing, fmt.Sprintf("quality below threshold: %s", tpl.ID))
		}
	}
	return failing
}

// score synthesizes the verdict from per-template matches. 1:1 averages all
// template scores against the claimed identity; 1:N takes the best-scoring
// candidate as the primary match.
func (s *Service) score(req MatchRequest, matches []MatchResult, started time.Time) *Result {
	result := &Result{Matches: matches}

	var confidence float64
	switch req.Mode {
	case ModeIdentification:
		var best *MatchResult
		for i := range matches {
			if best == nil || matches[i].Score > best.Score {
				best = &matches[i]
			}
		}
		result.Primary = best
		if best != nil {
			confidence = best.Score
		}
	default: // 1:1
		var total float64
		for _, m := range matches {
			total += m.Score
		}
		if len(matches) > 0 {
			confidence = total / float64(len(matches))
		}
	}

	if confidence >= s.matchThreshold {
		result.Verdict = verdict.New(verdict.StatusVerified, confidence, started)
	} else {
		result.Verdict = verdict.New(verdict.StatusNotVerified, confidence, started,
			"match confidence below threshold")
	}
	return result
}

// Health reports matcher availability for readiness probes.
func (s *Service) Health(ctx context.Context) error {
	return s.matcher.Health(ctx)
}

func (s *Service) audit(ctx context.Context, req MatchRequest, outcome audit.Outcome, started time.Time, details map[string]string) {
	if s.sink == nil {
		return
	}
	if details == nil {
		details = make(map[string]string)
	}
	details["duration_ms"] = fmt.Sprintf("%d", time.Since(started).Milliseconds())

	s.sink.Publish(ctx, audit.Event{
		RequestID: requestcontext.RequestID(ctx),
		Action:    audit.ActionBiometricVerify,
		EntityID:  req.ApplicantID.String(),
		Outcome:   outcome,
		Details:   details,
	})
}

// translateUpstream mirrors the identity service's classification so both
// network-bound stages speak the same error language to the orchestrator.
func translateUpstream(err error) error {
	switch upstream.CategoryOf(err) {
	case upstream.ErrorTimeout, upstream.ErrorOutage, upstream.ErrorRateLimited:
		return dErrors.Wrap(err, dErrors.KindRegistryUnreachable, "biometric matcher unreachable")
	case upstream.ErrorAuthentication:
		return dErrors.Wrap(err, dErrors.KindConfigurationError, "biometric matcher rejected credentials")
	default:
		return dErrors.Wrap(err, dErrors.KindInternal, "biometric match failed")
	}
}
