package httptransport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veridoc/internal/biometric"
	"veridoc/internal/document"
	"veridoc/internal/document/store"
	"veridoc/internal/identity"
	"veridoc/internal/issuance"
	"veridoc/internal/secfeature"
	"veridoc/internal/sentinel"
	httpjson "veridoc/internal/transport/http/json"
	"veridoc/internal/transport/http/shared"
	"veridoc/internal/verdict"
	"veridoc/internal/verification"
	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
)

// Issuer drives one document issuance.
type Issuer interface {
	Issue(ctx context.Context, req issuance.IssueRequest) (*issuance.Result, error)
}

// DocumentVerifier re-verifies a previously issued document.
type DocumentVerifier interface {
	VerifyDocument(ctx context.Context, ev verification.Evidence) (*verification.Outcome, error)
}

// DocumentHandler handles the document endpoints. It delegates to the
// issuance orchestrator and the verification aggregator without embedding
// business logic.
type DocumentHandler struct {
	issuer   Issuer
	verifier DocumentVerifier
	store    store.Store
	logger   *slog.Logger
}

// NewDocumentHandler creates the document endpoint handler.
func NewDocumentHandler(issuer Issuer, verifier DocumentVerifier, docStore store.Store, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		issuer:   issuer,
		verifier: verifier,
		store:    docStore,
		logger:   logger,
	}
}

type biographicPayload struct {
	FirstNames   string `json:"first_names"`
	Surname      string `json:"surname"`
	DateOfBirth  string `json:"date_of_birth"`
	PlaceOfBirth string `json:"place_of_birth,omitempty"`
}

type templatePayload struct {
	ID       string  `json:"id"`
	Modality string  `json:"modality"`
	Format   string  `json:"format"`
	Data     string  `json:"data"` // base64
	Quality  float64 `json:"quality"`
}

type issueRequest struct {
	ApplicantID   string            `json:"applicant_id"`
	ApplicationID string            `json:"application_id"`
	DocumentType  string            `json:"document_type"`
	Method        string            `json:"method"`
	NationalID    string            `json:"national_id,omitempty"`
	Biographic    biographicPayload `json:"biographic,omitempty"`
	BiometricMode string            `json:"biometric_mode,omitempty"`
	Templates     []templatePayload `json:"templates,omitempty"`
}

type verdictPayload struct {
	Status        string   `json:"status"`
	Confidence    float64  `json:"confidence"`
	MatchLevel    string   `json:"match_level"`
	Discrepancies []string `json:"discrepancies,omitempty"`
}

type issueResponse struct {
	DocumentID string          `json:"document_id"`
	Status     string          `json:"status"`
	Document   string          `json:"document"` // base64 envelope
	AnchorRef  string          `json:"anchor_ref"`
	Signature  string          `json:"signature"`
	Receipt    string          `json:"receipt"`
	IssuedAt   string          `json:"issued_at"`
	ExpiresAt  string          `json:"expires_at"`
	Identity   verdictPayload  `json:"identity"`
	Biometric  *verdictPayload `json:"biometric,omitempty"`
	Features   map[string]bool `json:"features"`
}

func (h *DocumentHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.KindInvalidInput, "malformed request body"))
		return
	}

	issueReq, err := toIssueRequest(req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.issuer.Issue(r.Context(), issueReq)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	doc := result.Document
	resp := issueResponse{
		DocumentID: doc.ID.String(),
		Status:     string(issuance.StateIssued),
		Document:   base64.StdEncoding.EncodeToString(doc.Bytes),
		AnchorRef:  doc.AnchorRef,
		Signature:  doc.Signature,
		Receipt:    doc.Receipt,
		IssuedAt:   doc.IssuedAt.Format(time.RFC3339),
		ExpiresAt:  doc.ExpiresAt.Format(time.RFC3339),
		Identity:   toVerdictPayload(result.Identity),
		Features:   toFeatureMap(doc.Report),
	}
	if result.Biometric != nil {
		bio := toVerdictPayload(result.Biometric)
		resp.Biometric = &bio
	}
	httpjson.WriteJSON(w, http.StatusCreated, resp)
}

type verifyRequest struct {
	DocumentID string             `json:"document_id,omitempty"`
	Document   string             `json:"document,omitempty"` // base64 envelope
	AnchorRef  string             `json:"anchor_ref,omitempty"`
	Receipt    string             `json:"receipt,omitempty"`
	Method     string             `json:"method,omitempty"`
	NationalID string             `json:"national_id,omitempty"`
	Biographic *biographicPayload `json:"biographic,omitempty"`
}

type verifyResponse struct {
	Valid         bool                    `json:"valid"`
	Verdict       verdictPayload          `json:"verdict"`
	Checks        map[string]checkPayload `json:"checks"`
	AnchorRef     string                  `json:"anchor_ref,omitempty"`
	Features      map[string]bool         `json:"features,omitempty"`
	Discrepancies []string                `json:"discrepancies,omitempty"`
}

type checkPayload struct {
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

func (h *DocumentHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.KindInvalidInput, "malformed request body"))
		return
	}

	ev, err := toEvidence(req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	outcome, err := h.verifier.VerifyDocument(r.Context(), ev)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := verifyResponse{
		Valid:         outcome.Valid,
		Verdict:       toVerdictPayload(outcome.Verdict),
		Checks:        make(map[string]checkPayload, len(outcome.Checks)),
		AnchorRef:     outcome.AnchorRef,
		Features:      toFeatureMap(outcome.Features),
		Discrepancies: outcome.Discrepancies,
	}
	for check, result := range outcome.Checks {
		resp.Checks[string(check)] = checkPayload{Passed: result.Passed, Detail: result.Detail}
	}
	httpjson.WriteJSON(w, http.StatusOK, resp)
}

type documentResponse struct {
	DocumentID    string          `json:"document_id"`
	ApplicantID   string          `json:"applicant_id"`
	ApplicationID string          `json:"application_id"`
	Document      string          `json:"document"` // base64 envelope
	AnchorRef     string          `json:"anchor_ref"`
	Signature     string          `json:"signature"`
	Receipt       string          `json:"receipt"`
	IssuedAt      string          `json:"issued_at"`
	ExpiresAt     string          `json:"expires_at"`
	Features      map[string]bool `json:"features"`
}

func (h *DocumentHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	docID, err := domain.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.KindInvalidInput, "malformed document id"))
		return
	}

	doc, err := h.store.FindByID(r.Context(), docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httpjson.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
			return
		}
		shared.WriteError(w, dErrors.Wrap(err, dErrors.KindInternal, "load issued document"))
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, documentResponse{
		DocumentID:    doc.ID.String(),
		ApplicantID:   doc.ApplicantID.String(),
		ApplicationID: doc.ApplicationID.String(),
		Document:      base64.StdEncoding.EncodeToString(doc.Bytes),
		AnchorRef:     doc.AnchorRef,
		Signature:     doc.Signature,
		Receipt:       doc.Receipt,
		IssuedAt:      doc.IssuedAt.Format(time.RFC3339),
		ExpiresAt:     doc.ExpiresAt.Format(time.RFC3339),
		Features:      toFeatureMap(doc.Report),
	})
}

func toIssueRequest(req issueRequest) (issuance.IssueRequest, error) {
	applicantID, err := domain.ParseApplicantID(req.ApplicantID)
	if err != nil {
		return issuance.IssueRequest{}, dErrors.New(dErrors.KindInvalidInput, "malformed applicant_id")
	}
	applicationID, err := domain.ParseApplicationID(req.ApplicationID)
	if err != nil {
		return issuance.IssueRequest{}, dErrors.New(dErrors.KindInvalidInput, "malformed application_id")
	}

	templates := make([]biometric.Template, 0, len(req.Templates))
	for _, t := range req.Templates {
		data, err := base64.StdEncoding.DecodeString(t.Data)
		if err != nil {
			return issuance.IssueRequest{}, dErrors.New(dErrors.KindInvalidInput, "template data must be base64")
		}
		templates = append(templates, biometric.Template{
			ID:       t.ID,
			Modality: biometric.Modality(t.Modality),
			Format:   t.Format,
			Data:     data,
			Quality:  t.Quality,
		})
	}

	return issuance.IssueRequest{
		Identity: identity.Request{
			ApplicantID:   applicantID,
			ApplicationID: applicationID,
			Method:        identity.Method(req.Method),
			NationalID:    req.NationalID,
			Biographic: identity.Biographic{
				FirstNames:   req.Biographic.FirstNames,
				Surname:      req.Biographic.Surname,
				DateOfBirth:  req.Biographic.DateOfBirth,
				PlaceOfBirth: req.Biographic.PlaceOfBirth,
			},
		},
		Holder: document.Holder{
			FirstNames:   req.Biographic.FirstNames,
			Surname:      req.Biographic.Surname,
			DateOfBirth:  req.Biographic.DateOfBirth,
			PlaceOfBirth: req.Biographic.PlaceOfBirth,
			NationalID:   req.NationalID,
		},
		DocumentType:  req.DocumentType,
		Templates:     templates,
		BiometricMode: biometric.Mode(req.BiometricMode),
	}, nil
}

func toEvidence(req verifyRequest) (verification.Evidence, error) {
	ev := verification.Evidence{
		AnchorRef: req.AnchorRef,
		Receipt:   req.Receipt,
	}

	if req.DocumentID != "" {
		docID, err := domain.ParseDocumentID(req.DocumentID)
		if err != nil {
			return verification.Evidence{}, dErrors.New(dErrors.KindInvalidInput, "malformed document_id")
		}
		ev.DocumentID = docID
	} else {
		if req.Document == "" {
			return verification.Evidence{}, dErrors.New(dErrors.KindInvalidInput,
				"either document_id or document is required")
		}
		docBytes, err := base64.StdEncoding.DecodeString(req.Document)
		if err != nil {
			return verification.Evidence{}, dErrors.New(dErrors.KindInvalidInput, "document must be base64")
		}
		ev.DocumentBytes = docBytes
	}

	if req.Method != "" {
		identityReq := identity.Request{
			Method:     identity.Method(req.Method),
			NationalID: req.NationalID,
		}
		if req.Biographic != nil {
			identityReq.Biographic = identity.Biographic{
				FirstNames:   req.Biographic.FirstNames,
				Surname:      req.Biographic.Surname,
				DateOfBirth:  req.Biographic.DateOfBirth,
				PlaceOfBirth: req.Biographic.PlaceOfBirth,
			}
		}
		ev.Identity = &identityReq
	}
	return ev, nil
}

func toVerdictPayload(v *verdict.Verdict) verdictPayload {
	if v == nil {
		return verdictPayload{}
	}
	return verdictPayload{
		Status:        string(v.Status),
		Confidence:    v.Confidence,
		MatchLevel:    string(v.MatchLevel),
		Discrepancies: v.Discrepancies,
	}
}

func toFeatureMap(report *secfeature.Report) map[string]bool {
	if report == nil {
		return nil
	}
	features := make(map[string]bool, len(report.Features))
	for feature, check := range report.Features {
		features[string(feature)] = check.Passed
	}
	return features
}
