package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"veridoc/internal/anchor"
	"veridoc/internal/biometric"
	"veridoc/internal/document"
	"veridoc/internal/document/store"
	"veridoc/internal/identity"
	"veridoc/internal/issuance/metrics"
	"veridoc/internal/issuance/tracer"
	"veridoc/internal/secfeature"
	"veridoc/internal/upstream"
	"veridoc/internal/verdict"
	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	audit "veridoc/pkg/platform/audit"
	"veridoc/pkg/requestcontext"
)

// IdentityVerifier confirms the applicant's claimed identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, req identity.Request) (*verdict.Verdict, error)
}

// BiometricVerifier gates quality and matches biometric templates.
type BiometricVerifier interface {
	Verify(ctx context.Context, req biometric.MatchRequest) (*biometric.Result, error)
}

// AuditSink receives one event per transition and pipeline milestone.
type AuditSink interface {
	Publish(ctx context.Context, event audit.Event)
}

// Config assembles the orchestrator's collaborators. Thresholds and the
// retry policy come from process config; nothing here changes at request
// time.
type Config struct {
	Identity  IdentityVerifier
	Biometric BiometricVerifier
	Applier   *secfeature.Applier
	Verifier  *secfeature.Verifier
	Anchor    anchor.Client
	Renderer  document.Renderer
	Store     store.Store
	Receipts  *ReceiptSigner
	Retry     RetryPolicy
	Validity  time.Duration

	Audit   AuditSink
	Metrics *metrics.Metrics
	Tracer  tracer.Tracer
	Logger  *slog.Logger
}

// Orchestrator sequences identity, biometric, feature, and anchor work for
// one issuance request. Each request runs as a single unit of work; the
// caller's context cancels every downstream call.
type Orchestrator struct {
	identity  IdentityVerifier
	biometric BiometricVerifier
	applier   *secfeature.Applier
	verifier  *secfeature.Verifier
	anchor    anchor.Client
	renderer  document.Renderer
	store     store.Store
	receipts  *ReceiptSigner
	retry     RetryPolicy
	validity  time.Duration

	sink    AuditSink
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
}

// New creates an issuance orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Identity == nil:
		return nil, dErrors.New(dErrors.KindConfigurationError, "identity verifier is required")
	case cfg.Applier == nil || cfg.Verifier == nil:
		return nil, dErrors.New(dErrors.KindConfigurationError, "feature applier and verifier are required")
	case cfg.Anchor == nil:
		return nil, dErrors.New(dErrors.KindConfigurationError, "anchor client is required")
	case cfg.Store == nil:
		return nil, dErrors.New(dErrors.KindConfigurationError, "document store is required")
	case cfg.Receipts == nil:
		return nil, dErrors.New(dErrors.KindConfigurationError, "receipt signer is required")
	}

	if cfg.Renderer == nil {
		cfg.Renderer = document.CanonicalRenderer{}
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Validity <= 0 {
		cfg.Validity = 5 * 365 * 24 * time.Hour
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracer.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		identity:  cfg.Identity,
		biometric: cfg.Biometric,
		applier:   cfg.Applier,
		verifier:  cfg.Verifier,
		anchor:    cfg.Anchor,
		renderer:  cfg.Renderer,
		store:     cfg.Store,
		receipts:  cfg.Receipts,
		retry:     cfg.Retry,
		validity:  cfg.Validity,
		sink:      cfg.Audit,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger,
	}, nil
}

// run tracks one request through the state machine.
type run struct {
	state    State
	trail    []Transition
	outcomes map[Stage]StageOutcome
}

// Issue drives one issuance to completion.
//
// Identity must verify before anything else runs. The biometric stage is
// skipped entirely when no templates were supplied; a present-and-failing
// stage fails the whole issuance. Feature application, anchoring, and
// persistence each abort on first failure, so an IssuedDocument exists only
// when every stage passed.
func (o *Orchestrator) Issue(ctx context.Context, req IssueRequest) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanIssue,
		tracer.String(tracer.AttrApplicantID, req.Identity.ApplicantID.String()),
		tracer.String(tracer.AttrApplicationID, req.Identity.ApplicationID.String()),
		tracer.String(tracer.AttrMethod, string(req.Identity.Method)),
	)
	var issueErr error
	defer func() { span.End(issueErr) }()

	if o.metrics != nil {
		o.metrics.InFlight.Inc()
		defer o.metrics.InFlight.Dec()
	}

	r := &run{state: StateStarted, outcomes: make(map[Stage]StageOutcome)}

	identityVerdict, err := o.checkIdentity(ctx, req, r, span)
	if err != nil {
		issueErr = err
		return nil, o.failed(ctx, req, r, StageIdentity, err)
	}
	o.transition(ctx, req, r, StateIdentityChecked)

	biometricVerdict, err := o.checkBiometrics(ctx, req, r)
	if err != nil {
		issueErr = err
		return nil, o.failed(ctx, req, r, StageBiometric, err)
	}
	if biometricVerdict != nil {
		o.transition(ctx, req, r, StateBiometricsChecked)
	}

	doc, report, err := o.buildDocument(ctx, req, r)
	if err != nil {
		issueErr = err
		stage := StageFeatures
		if r.outcomes[StageRender] == StageFailed {
			stage = StageRender
		}
		return nil, o.failed(ctx, req, r, stage, err)
	}
	o.transition(ctx, req, r, StateFeaturesApplied)

	record, err := o.anchorDocument(ctx, req, r, doc.Bytes)
	if err != nil {
		issueErr = err
		return nil, o.failed(ctx, req, r, StageAnchor, err)
	}
	o.transition(ctx, req, r, StateAnchored)

	doc.AnchorRef = record.Reference
	doc.Signature = record.Signature
	doc.Report = report

	receipt, err := o.receipts.Issue(ReceiptClaims{
		DocumentID:          doc.ID.String(),
		ApplicantID:         doc.ApplicantID.String(),
		AnchorRef:           record.Reference,
		IdentityStatus:      string(identityVerdict.Status),
		IdentityConfidence:  identityVerdict.Confidence,
		BiometricStatus:     biometricStatus(biometricVerdict),
		BiometricConfidence: biometricConfidence(biometricVerdict),
		Stages:              r.outcomes,
	}, doc.IssuedAt, doc.ExpiresAt)
	if err != nil {
		issueErr = err
		return nil, o.failed(ctx, req, r, StagePersist, err)
	}
	doc.Receipt = receipt

	if err := o.store.Save(ctx, doc); err != nil {
		issueErr = dErrors.Wrap(err, dErrors.KindInternal, "persist issued document")
		r.outcomes[StagePersist] = StageFailed
		return nil, o.failed(ctx, req, r, StagePersist, issueErr)
	}
	r.outcomes[StagePersist] = StagePassed
	o.transition(ctx, req, r, StateIssued)

	if o.metrics != nil {
		o.metrics.RecordIssuance("issued", "")
	}
	o.audit(ctx, req, audit.ActionDocumentIssue, audit.OutcomeCompleted, map[string]string{
		"document_id": doc.ID.String(),
		"anchor_ref":  record.Reference,
	})
	o.logger.InfoContext(ctx, "document issued",
		slog.String("document_id", doc.ID.String()),
		slog.String("applicant_id", doc.ApplicantID.String()),
		slog.String("anchor_ref", record.Reference),
	)
	span.SetAttributes(tracer.String(tracer.AttrDocumentID, doc.ID.String()))

	return &Result{
		Document:  doc,
		Identity:  identityVerdict,
		Biometric: biometricVerdict,
		Outcomes:  r.outcomes,
		Trail:     r.trail,
	}, nil
}

// checkIdentity runs the identity stage, retrying transient registry
// failures only.
func (o *Orchestrator) checkIdentity(ctx context.Context, req IssueRequest, r *run, span tracer.Span) (*verdict.Verdict, error) {
	stageCtx, stageSpan := o.tracer.Start(ctx, tracer.SpanIdentityCheck)
	started := time.Now()

	var identityVerdict *verdict.Verdict
	err := o.retry.run(stageCtx, func() error {
		v, verifyErr := o.identity.Verify(stageCtx, req.Identity)
		if verifyErr != nil {
			return verifyErr
		}
		identityVerdict = v
		return nil
	}, func(attempt int, retryErr error) {
		if o.metrics != nil {
			o.metrics.RecordIdentityRetry()
		}
		span.AddEvent(tracer.EventRetryScheduled,
			tracer.Int64(tracer.AttrAttempt, int64(attempt)))
		o.logger.WarnContext(ctx, "identity check retry scheduled",
			slog.Int("attempt", attempt),
			slog.String("error", retryErr.Error()),
		)
	})
	o.observeStage(StageIdentity, started)
	stageSpan.End(err)

	if err != nil {
		r.outcomes[StageIdentity] = StageFailed
		return nil, err
	}
	if !identityVerdict.Verified() {
		r.outcomes[StageIdentity] = StageFailed
		return nil, dErrors.NewWithSuggestion(dErrors.KindNoMatch,
			fmt.Sprintf("identity verification returned %s", identityVerdict.Status),
			"confirm the applicant's identity details and resubmit")
	}
	r.outcomes[StageIdentity] = StagePassed
	return identityVerdict, nil
}

// checkBiometrics runs the biometric stage. A nil verdict with nil error
// means the stage was skipped because no templates were supplied.
func (o *Orchestrator) checkBiometrics(ctx context.Context, req IssueRequest, r *run) (*verdict.Verdict, error) {
	if len(req.Templates) == 0 {
		r.outcomes[StageBiometric] = StageSkipped
		return nil, nil
	}
	if o.biometric == nil {
		r.outcomes[StageBiometric] = StageFailed
		return nil, dErrors.New(dErrors.KindConfigurationError,
			"biometric templates supplied but no matcher is configured")
	}

	stageCtx, stageSpan := o.tracer.Start(ctx, tracer.SpanBiometricCheck)
	started := time.Now()

	mode := req.BiometricMode
	if mode == "" {
		mode = biometric.ModeVerification
	}
	result, err := o.biometric.Verify(stageCtx, biometric.MatchRequest{
		ApplicantID: req.Identity.ApplicantID,
		Mode:        mode,
		ReferenceID: req.Identity.NationalID,
		Templates:   req.Templates,
	})
	o.observeStage(StageBiometric, started)
	stageSpan.End(err)

	if err != nil {
		r.outcomes[StageBiometric] = StageFailed
		return nil, err
	}
	v := result.Verdict
	if !v.Verified() {
		r.outcomes[StageBiometric] = StageFailed
		if v.Status == verdict.StatusInconclusive {
			return nil, dErrors.NewWithSuggestion(dErrors.KindQualityGateFailed,
				fmt.Sprintf("biometric capture below quality threshold: %v", v.Discrepancies),
				"recapture the failing templates at higher quality and resubmit")
		}
		return nil, dErrors.NewWithSuggestion(dErrors.KindNoMatch,
			"biometric match score below threshold",
			"confirm the templates belong to the applicant")
	}
	r.outcomes[StageBiometric] = StagePassed
	return v, nil
}

// buildDocument renders the canonical content and embeds the full marker
// catalogue. The report is re-derived from the final bytes, never trusted
// from application state.
func (o *Orchestrator) buildDocument(ctx context.Context, req IssueRequest, r *run) (*document.IssuedDocument, *secfeature.Report, error) {
	_, renderSpan := o.tracer.Start(ctx, tracer.SpanRender)
	started := time.Now()

	docID := domain.NewDocumentID()
	issuedAt := time.Now().UTC()
	holder := req.Holder
	if holder.NationalID == "" {
		holder.NationalID = req.Identity.NationalID
	}

	content, err := o.renderer.Render(ctx, document.Content{
		DocumentID:    docID.String(),
		ApplicantID:   req.Identity.ApplicantID.String(),
		ApplicationID: req.Identity.ApplicationID.String(),
		DocumentType:  req.DocumentType,
		Holder:        holder,
		IssuedAt:      issuedAt.Format(time.RFC3339),
	})
	o.observeStage(StageRender, started)
	renderSpan.End(err)
	if err != nil {
		r.outcomes[StageRender] = StageFailed
		return nil, nil, err
	}
	r.outcomes[StageRender] = StagePassed

	_, featureSpan := o.tracer.Start(ctx, tracer.SpanFeaturesApply)
	started = time.Now()
	docBytes, err := o.applier.Apply(content)
	if err == nil {
		o.audit(ctx, req, audit.ActionFeaturesApply, audit.OutcomeCompleted, nil)
	} else {
		o.audit(ctx, req, audit.ActionFeaturesApply, audit.OutcomeFailed, map[string]string{
			"error": err.Error(),
		})
	}
	o.observeStage(StageFeatures, started)
	featureSpan.End(err)
	if err != nil {
		r.outcomes[StageFeatures] = StageFailed
		return nil, nil, err
	}

	report, err := o.verifier.Verify(docBytes)
	if err != nil {
		r.outcomes[StageFeatures] = StageFailed
		return nil, nil, err
	}
	if !report.AllPresent {
		r.outcomes[StageFeatures] = StageFailed
		return nil, nil, dErrors.New(dErrors.KindFeatureApplicationFailed,
			fmt.Sprintf("feature confirmation failed after application: %v", report.Failing()))
	}
	r.outcomes[StageFeatures] = StagePassed

	return &document.IssuedDocument{
		ID:            docID,
		ApplicantID:   req.Identity.ApplicantID,
		ApplicationID: req.Identity.ApplicationID,
		Bytes:         docBytes,
		IssuedAt:      issuedAt,
		ExpiresAt:     issuedAt.Add(o.validity),
	}, report, nil
}

// anchorDocument obtains the collaborator's countersignature. The
// orchestrator does not retry anchor failures; the caller decides using the
// error's retryable flag.
func (o *Orchestrator) anchorDocument(ctx context.Context, req IssueRequest, r *run, docBytes []byte) (*anchor.Record, error) {
	stageCtx, stageSpan := o.tracer.Start(ctx, tracer.SpanAnchor)
	started := time.Now()

	record, err := o.anchor.Anchor(stageCtx, docBytes)
	o.observeStage(StageAnchor, started)
	stageSpan.End(err)

	if err != nil {
		r.outcomes[StageAnchor] = StageFailed
		o.audit(ctx, req, audit.ActionDocumentAnchor, audit.OutcomeFailed, map[string]string{
			"error": err.Error(),
		})
		return nil, translateAnchorError(err)
	}
	if record == nil || record.Reference == "" || record.Signature == "" {
		r.outcomes[StageAnchor] = StageFailed
		o.audit(ctx, req, audit.ActionDocumentAnchor, audit.OutcomeFailed, map[string]string{
			"error": "empty anchor reference or signature",
		})
		return nil, dErrors.NewWithSuggestion(dErrors.KindAnchorFailed,
			"anchor collaborator returned an empty reference or signature",
			"retry once the anchoring service is healthy")
	}

	r.outcomes[StageAnchor] = StagePassed
	o.audit(ctx, req, audit.ActionDocumentAnchor, audit.OutcomeCompleted, map[string]string{
		"anchor_ref": record.Reference,
	})
	return record, nil
}

// transition advances the state machine, emitting one audit event per step.
func (o *Orchestrator) transition(ctx context.Context, req IssueRequest, r *run, to State) {
	from := r.state
	r.state = to
	r.trail = append(r.trail, Transition{From: from, To: to, At: time.Now().UTC()})
	o.audit(ctx, req, audit.ActionTransition, audit.OutcomeCompleted, map[string]string{
		"from": string(from),
		"to":   string(to),
	})
}

// failed finalizes a failed run: terminal state, metrics, audit, and a
// structured error with kind, suggestion, and retryable flag.
func (o *Orchestrator) failed(ctx context.Context, req IssueRequest, r *run, stage Stage, err error) error {
	from := r.state
	r.state = StateFailed
	r.trail = append(r.trail, Transition{From: from, To: StateFailed, At: time.Now().UTC()})

	if o.metrics != nil {
		o.metrics.RecordIssuance("failed", string(stage))
	}
	o.audit(ctx, req, audit.ActionDocumentIssue, audit.OutcomeFailed, map[string]string{
		"stage": string(stage),
		"error": err.Error(),
	})
	o.logger.WarnContext(ctx, "issuance failed",
		slog.String("stage", string(stage)),
		slog.String("applicant_id", req.Identity.ApplicantID.String()),
		slog.String("error", err.Error()),
	)

	var classified *dErrors.Error
	if errors.As(err, &classified) {
		return err
	}
	return dErrors.Wrap(err, dErrors.KindInternal, fmt.Sprintf("issuance stage %s", stage))
}

func (o *Orchestrator) observeStage(stage Stage, started time.Time) {
	if o.metrics != nil {
		o.metrics.ObserveStage(string(stage), time.Since(started))
	}
}

func (o *Orchestrator) audit(ctx context.Context, req IssueRequest, action audit.Action, outcome audit.Outcome, details map[string]string) {
	if o.sink == nil {
		return
	}
	o.sink.Publish(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		RequestID: requestcontext.RequestID(ctx),
		Action:    action,
		EntityID:  req.Identity.ApplicationID.String(),
		Outcome:   outcome,
		Details:   details,
	})
}

// translateAnchorError maps upstream transport failures onto the anchor
// error kind so the caller's retry decision is uniform.
func translateAnchorError(err error) error {
	var classified *dErrors.Error
	if errors.As(err, &classified) {
		return err
	}
	if upstream.IsRetryable(err) {
		return dErrors.NewWithSuggestion(dErrors.KindAnchorFailed,
			"anchoring service unavailable",
			"retry with backoff once the anchoring service is reachable")
	}
	if upstream.CategoryOf(err) == upstream.ErrorAuthentication {
		return dErrors.Wrap(err, dErrors.KindConfigurationError, "anchoring service rejected credentials")
	}
	return dErrors.Wrap(err, dErrors.KindAnchorFailed, "anchoring service rejected the document")
}

func biometricStatus(v *verdict.Verdict) string {
	if v == nil {
		return ""
	}
	return string(v.Status)
}

func biometricConfidence(v *verdict.Verdict) float64 {
	if v == nil {
		return 0
	}
	return v.Confidence
}
