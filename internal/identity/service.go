package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"veridoc/internal/upstream"
	"veridoc/internal/verdict"
	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	audit "veridoc/pkg/platform/audit"
	"veridoc/pkg/requestcontext"
)

// idLookupConfidence is the confidence assigned to a positive national-ID
// lookup against the authoritative registry.
const idLookupConfidence = 95

// biographicThreshold is the minimum similarity score for a biographic
// search to count as verified.
const biographicThreshold = 70

// AuditSink receives one event per registry call (started/completed/failed).
type AuditSink interface {
	Publish(ctx context.Context, event audit.Event)
}

// Service verifies an applicant's claimed identity against the population
// registry. Exactly one upstream attempt per call; retries are the
// orchestrator's concern so registry quota and audit entries stay accurate.
type Service struct {
	client Client
	sink   AuditSink
	logger *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates an identity verification service.
func NewService(client Client, sink AuditSink, opts ...Option) *Service {
	s := &Service{client: client, sink: sink}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify confirms the applicant's identity using the request's method.
//
// Malformed national IDs are rejected immediately as not_verified with zero
// confidence; no network call is made for clearly invalid input. A genuine
// registry mismatch is a negative verdict, not an error. Only transport-level
// failures surface as errors, classified for the caller's retry decision.
func (s *Service) Verify(ctx context.Context, req Request) (*verdict.Verdict, error) {
	started := time.Now()

	switch req.Method {
	case MethodByID:
		return s.verifyByID(ctx, req, started)
	case MethodByBiographic:
		return s.verifyByBiographic(ctx, req, started)
	case MethodCombined:
		return s.verifyCombined(ctx, req, started)
	default:
		return nil, dErrors.New(dErrors.KindInvalidInput,
			fmt.Sprintf("unknown verification method %q", req.Method))
	}
}

func (s *Service) verifyByID(ctx context.Context, req Request, started time.Time) (*verdict.Verdict, error) {
	nationalID, err := domain.ParseNationalID(req.NationalID)
	if err != nil {
		// Fail fast: malformed input never reaches the registry.
		s.audit(ctx, req, audit.OutcomeFailed, started, map[string]string{
			"reason": "malformed national ID",
		})
		return verdict.New(verdict.StatusNotVerified, 0, started, "malformed national ID"), nil
	}

	s.audit(ctx, req, audit.OutcomeStarted, started, map[string]string{
		"national_id": nationalID.Redacted(),
	})

	record, err := s.client.LookupByID(ctx, nationalID)
	if err != nil {
		if upstream.IsNotFound(err) {
			s.audit(ctx, req, audit.OutcomeCompleted, started, map[string]string{
				"result": "no_record",
			})
			return verdict.New(verdict.StatusNotVerified, 0, started, "no registry record for national ID"), nil
		}
		s.audit(ctx, req, audit.OutcomeFailed, started, map[string]string{
			"category": string(upstream.CategoryOf(err)),
		})
		return nil, translateUpstream(err)
	}

	if !record.Active {
		s.audit(ctx, req, audit.OutcomeCompleted, started, map[string]string{
			"result": "inactive_record",
		})
		return verdict.New(verdict.StatusNotVerified, 0, started, "registry record is inactive"), nil
	}

	s.audit(ctx, req, audit.OutcomeCompleted, started, map[string]string{
		"result": "verified",
	})
	return verdict.New(verdict.StatusVerified, idLookupConfidence, started), nil
}

func (s *Service) verifyByBiographic(ctx context.Context, req Request, started time.Time) (*verdict.Verdict, error) {
	if err := req.Biographic.Validate(); err != nil {
		return nil, err
	}

	s.audit(ctx, req, audit.OutcomeStarted, started, nil)

	match, err := s.client.SearchBiographic(ctx, req.Biographic)
	if err != nil {
		if upstream.IsNotFound(err) {
			s.audit(ctx, req, audit.OutcomeCompleted, started, map[string]string{
				"result": "no_candidate",
			})
			return verdict.New(verdict.StatusNotVerified, 0, started, "no biographic candidate found"), nil
		}
		s.audit(ctx, req, audit.OutcomeFailed, started, map[string]string{
			"category": string(upstream.CategoryOf(err)),
		})
		return nil, translateUpstream(err)
	}

	if match.Score < biographicThreshold {
		s.audit(ctx, req, audit.OutcomeCompleted, started, map[string]string{
			"result": "below_threshold",
		})
		return verdict.New(verdict.StatusNotVerified, match.Score, started,
			"biographic similarity below threshold"), nil
	}

	s.audit(ctx, req, audit.OutcomeCompleted, started, map[string]string{
		"result": "verified",
	})
	return verdict.New(verdict.StatusVerified, match.Score, started), nil
}

// verifyCombined runs by_id first; only a verified ID lookup proceeds to the
// biographic search. The overall confidence is the minimum of the two scores:
// a biographic mismatch must lower, never raise, trust.
func (s *Service) verifyCombined(ctx context.Context, req Request, started time.Time) (*verdict.Verdict, error) {
	idVerdict, err := s.verifyByID(ctx, req, started)
	if err != nil {
		return nil, err
	}
	if !idVerdict.Verified() {
		return idVerdict, nil
	}

	bioVerdict, err := s.verifyByBiographic(ctx, req, time.Now())
	if err != nil {
		return nil, err
	}

	confidence := min(idVerdict.Confidence, bioVerdict.Confidence)
	if !bioVerdict.Verified() {
		discrepancies := append([]string{"biographic details do not match ID record"}, bioVerdict.Discrepancies...)
		return verdict.New(verdict.StatusNotVerified, confidence, started, discrepancies...), nil
	}

	return verdict.New(verdict.StatusVerified, confidence, started), nil
}

// Health reports registry availability for readiness probes.
func (s *Service) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *Service) audit(ctx context.Context, req Request, outcome audit.Outcome, started time.Time, details map[string]string) {
	if s.sink == nil {
		return
	}
	if details == nil {
		details = make(map[string]string)
	}
	details["method"] = string(req.Method)
	details["duration_ms"] = fmt.Sprintf("%d", time.Since(started).Milliseconds())

	s.sink.Publish(ctx, audit.Event{
		RequestID: requestcontext.RequestID(ctx),
		Action:    audit.ActionIdentityVerify,
		EntityID:  req.ApplicantID.String(),
		Outcome:   outcome,
		Details:   details,
	})
}

// translateUpstream converts normalized upstream errors into pipeline kinds.
// Classification happens here exactly once; no raw transport error crosses
// the service boundary.
func translateUpstream(err error) error {
	switch upstream.CategoryOf(err) {
	case upstream.ErrorTimeout, upstream.ErrorOutage, upstream.ErrorRateLimited:
		return dErrors.Wrap(err, dErrors.KindRegistryUnreachable, "registry unreachable")
	case upstream.ErrorAuthentication:
		return dErrors.Wrap(err, dErrors.KindConfigurationError, "registry rejected credentials")
	default:
		return dErrors.Wrap(err, dErrors.KindInternal, "registry call failed")
	}
}
