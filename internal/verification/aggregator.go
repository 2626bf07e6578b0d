package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"veridoc/internal/anchor"
	"veridoc/internal/document"
	"veridoc/internal/document/store"
	"veridoc/internal/identity"
	"veridoc/internal/issuance"
	"veridoc/internal/issuance/metrics"
	"veridoc/internal/issuance/tracer"
	"veridoc/internal/secfeature"
	"veridoc/internal/sentinel"
	"veridoc/internal/verdict"
	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	audit "veridoc/pkg/platform/audit"
	"veridoc/pkg/requestcontext"
)

// Config assembles the aggregator's collaborators. Identity, features, and
// anchor are the same instances the issuance orchestrator uses.
type Config struct {
	Identity issuance.IdentityVerifier
	Verifier *secfeature.Verifier
	Anchor   anchor.Client
	Store    store.Store
	Receipts *issuance.ReceiptSigner

	Audit   issuance.AuditSink
	Metrics *metrics.Metrics
	Tracer  tracer.Tracer
	Logger  *slog.Logger
}

// Aggregator is the single entry point for verifying a previously issued
// document, whether fetched from the store or submitted externally.
type Aggregator struct {
	identity issuance.IdentityVerifier
	verifier *secfeature.Verifier
	anchor   anchor.Client
	store    store.Store
	receipts *issuance.ReceiptSigner

	sink    issuance.AuditSink
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
}

// New creates a verification aggregator.
func New(cfg Config) (*Aggregator, error) {
	switch {
	case cfg.Identity == nil:
		return nil, dErrors.New(dErrors.KindConfigurationError, "identity verifier is required")
	case cfg.Verifier == nil:
		return nil, dErrors.New(dErrors.KindConfigurationError, "feature verifier is required")
	case cfg.Anchor == nil:
		return nil, dErrors.New(dErrors.KindConfigurationError, "anchor client is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracer.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Aggregator{
		identity: cfg.Identity,
		verifier: cfg.Verifier,
		anchor:   cfg.Anchor,
		store:    cfg.Store,
		receipts: cfg.Receipts,
		sink:     cfg.Audit,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
	}, nil
}

// VerifyDocument runs every check and combines them under the all-pass
// rule: the outcome is valid only when feature re-derivation, the anchor
// record, identity re-confirmation, and the receipt (when present) all
// hold. Failed checks produce an invalid outcome; only infrastructure
// failures surface as errors.
func (a *Aggregator) VerifyDocument(ctx context.Context, ev Evidence) (*Outcome, error) {
	ctx, span := a.tracer.Start(ctx, tracer.SpanVerifyDocument)
	var verifyErr error
	defer func() { span.End(verifyErr) }()

	started := time.Now()

	docBytes, anchorRef, receipt, expiresAt, err := a.resolve(ctx, ev)
	if err != nil {
		verifyErr = err
		a.recordResult("error")
		return nil, err
	}

	outcome := &Outcome{
		Checks:    make(map[Check]CheckResult),
		AnchorRef: anchorRef,
	}

	// Feature verification needs the content parsed either way; a document
	// whose envelope cannot be parsed fails the feature check outright.
	content, contentErr := parseContent(docBytes)

	identityReq, identityKnown := a.identityRequest(ev, content)

	// The three checks are independent; each goroutine owns its own result
	// slot and the map is assembled after Wait.
	group, groupCtx := errgroup.WithContext(ctx)

	var (
		report          *secfeature.Report
		featureCheck    CheckResult
		anchorCheck     CheckResult
		identityCheck   CheckResult
		identityVerdict *verdict.Verdict
	)

	group.Go(func() error {
		if contentErr != nil {
			featureCheck = CheckResult{Passed: false, Detail: "document envelope is malformed"}
			return nil
		}
		r, err := a.verifier.Verify(docBytes)
		if err != nil {
			if dErrors.HasKind(err, dErrors.KindFeatureVerificationFailed) {
				featureCheck = CheckResult{Passed: false, Detail: err.Error()}
				return nil
			}
			return err
		}
		report = r
		if r.AllPresent {
			featureCheck = CheckResult{Passed: true}
		} else {
			featureCheck = CheckResult{
				Passed: false,
				Detail: fmt.Sprintf("failing features: %s", joinFeatures(r.Failing())),
			}
		}
		return nil
	})

	group.Go(func() error {
		if anchorRef == "" {
			anchorCheck = CheckResult{Passed: false, Detail: "no anchor reference supplied"}
			return nil
		}
		valid, err := a.anchor.VerifyAnchor(groupCtx, anchorRef, docBytes)
		if err != nil {
			return err
		}
		if valid {
			anchorCheck = CheckResult{Passed: true}
		} else {
			anchorCheck = CheckResult{Passed: false, Detail: "anchor record missing or does not match document"}
		}
		return nil
	})

	group.Go(func() error {
		if !identityKnown {
			identityCheck = CheckResult{Passed: false, Detail: "no identity evidence available for re-confirmation"}
			return nil
		}
		v, err := a.identity.Verify(groupCtx, identityReq)
		if err != nil {
			return err
		}
		identityVerdict = v
		if v.Verified() {
			identityCheck = CheckResult{Passed: true}
		} else {
			identityCheck = CheckResult{
				Passed: false,
				Detail: fmt.Sprintf("identity re-confirmation returned %s", v.Status),
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		verifyErr = err
		a.recordResult("error")
		return nil, err
	}
	outcome.Checks[CheckFeatures] = featureCheck
	outcome.Checks[CheckAnchor] = anchorCheck
	outcome.Checks[CheckIdentity] = identityCheck

	a.checkReceipt(outcome, receipt, content, anchorRef)

	// An expired validity window is a discrepancy, not a verdict failure:
	// tamper evidence still holds for an out-of-window document.
	if !expiresAt.IsZero() && time.Now().After(expiresAt) {
		outcome.Discrepancies = append(outcome.Discrepancies,
			fmt.Sprintf("validity window expired at %s", expiresAt.Format(time.RFC3339)))
	}

	outcome.Features = report
	outcome.Valid = allPassed(outcome.Checks)
	for _, check := range []Check{CheckFeatures, CheckAnchor, CheckIdentity, CheckReceipt} {
		if result, ok := outcome.Checks[check]; ok && !result.Passed {
			outcome.Discrepancies = append(outcome.Discrepancies,
				fmt.Sprintf("%s: %s", check, result.Detail))
		}
	}

	confidence := 0.0
	if identityVerdict != nil {
		confidence = identityVerdict.Confidence
	}
	status := verdict.StatusNotVerified
	if outcome.Valid {
		status = verdict.StatusVerified
	}
	outcome.Verdict = verdict.New(status, confidence, started, outcome.Discrepancies...)

	result := "invalid"
	if outcome.Valid {
		result = "valid"
	}
	a.recordResult(result)
	a.audit(ctx, ev, content, outcome)
	span.SetAttributes(
		tracer.String(tracer.AttrVerdictStatus, string(status)),
		tracer.Float64(tracer.AttrConfidence, confidence),
	)

	return outcome, nil
}

// resolve turns the evidence into concrete bytes, anchor reference, receipt,
// and expiry, loading the stored document when an ID was given.
func (a *Aggregator) resolve(ctx context.Context, ev Evidence) ([]byte, string, string, time.Time, error) {
	if !ev.DocumentID.IsNil() {
		if a.store == nil {
			return nil, "", "", time.Time{}, dErrors.New(dErrors.KindConfigurationError,
				"document lookup requested but no store is configured")
		}
		doc, err := a.store.FindByID(ctx, ev.DocumentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, "", "", time.Time{}, dErrors.NewWithSuggestion(dErrors.KindInvalidInput,
					"unknown document id", "check the document id or submit the document bytes directly")
			}
			return nil, "", "", time.Time{}, dErrors.Wrap(err, dErrors.KindInternal, "load issued document")
		}
		return doc.Bytes, doc.AnchorRef, doc.Receipt, doc.ExpiresAt, nil
	}

	if len(ev.DocumentBytes) == 0 {
		return nil, "", "", time.Time{}, dErrors.New(dErrors.KindInvalidInput,
			"either a document id or document bytes are required")
	}
	return ev.DocumentBytes, ev.AnchorRef, ev.Receipt, time.Time{}, nil
}

// identityRequest builds the re-confirmation request, preferring explicit
// evidence and falling back to the document's own content.
func (a *Aggregator) identityRequest(ev Evidence, content *document.Content) (identity.Request, bool) {
	if ev.Identity != nil {
		return *ev.Identity, true
	}
	if content == nil || content.Holder.NationalID == "" {
		return identity.Request{}, false
	}
	applicantID, _ := domain.ParseApplicantID(content.ApplicantID)
	applicationID, _ := domain.ParseApplicationID(content.ApplicationID)
	return identity.Request{
		ApplicantID:   applicantID,
		ApplicationID: applicationID,
		Method:        identity.MethodByID,
		NationalID:    content.Holder.NationalID,
	}, true
}

// checkReceipt validates the extended-signature receipt when one is
// available. Absence of a receipt skips the check entirely.
func (a *Aggregator) checkReceipt(outcome *Outcome, receipt string, content *document.Content, anchorRef string) {
	if receipt == "" || a.receipts == nil {
		return
	}
	claims, err := a.receipts.Validate(receipt)
	if err != nil {
		outcome.Checks[CheckReceipt] = CheckResult{Passed: false, Detail: err.Error()}
		return
	}
	if content != nil && claims.DocumentID != content.DocumentID {
		outcome.Checks[CheckReceipt] = CheckResult{Passed: false, Detail: "receipt was issued for a different document"}
		return
	}
	if anchorRef != "" && claims.AnchorRef != anchorRef {
		outcome.Checks[CheckReceipt] = CheckResult{Passed: false, Detail: "receipt anchor reference does not match"}
		return
	}
	outcome.Checks[CheckReceipt] = CheckResult{Passed: true}
}

func (a *Aggregator) recordResult(result string) {
	if a.metrics != nil {
		a.metrics.RecordVerification(result)
	}
}

func (a *Aggregator) audit(ctx context.Context, ev Evidence, content *document.Content, outcome *Outcome) {
	if a.sink == nil {
		return
	}
	entityID := ev.DocumentID.String()
	if content != nil {
		entityID = content.DocumentID
	}
	auditOutcome := audit.OutcomeFailed
	if outcome.Valid {
		auditOutcome = audit.OutcomeCompleted
	}
	a.sink.Publish(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		RequestID: requestcontext.RequestID(ctx),
		Action:    audit.ActionDocumentVerify,
		EntityID:  entityID,
		Outcome:   auditOutcome,
		Details: map[string]string{
			"valid":         fmt.Sprintf("%t", outcome.Valid),
			"discrepancies": strings.Join(outcome.Discrepancies, "; "),
		},
	})
}

func parseContent(docBytes []byte) (*document.Content, error) {
	raw, err := secfeature.Content(docBytes)
	if err != nil {
		return nil, err
	}
	var content document.Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

func allPassed(checks map[Check]CheckResult) bool {
	for _, result := range checks {
		if !result.Passed {
			return false
		}
	}
	return len(checks) > 0
}

func joinFeatures(features []secfeature.Feature) string {
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
