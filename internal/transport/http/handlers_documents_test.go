package httptransport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veridoc/internal/document"
	"veridoc/internal/document/store"
	"veridoc/internal/issuance"
	"veridoc/internal/verdict"
	"veridoc/internal/verification"
	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
)

type stubIssuer struct {
	gotReq issuance.IssueRequest
	result *issuance.Result
	err    error
}

func (s *stubIssuer) Issue(_ context.Context, req issuance.IssueRequest) (*issuance.Result, error) {
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubVerifier struct {
	gotEvidence verification.Evidence
	outcome     *verification.Outcome
	err         error
}

func (s *stubVerifier) VerifyDocument(_ context.Context, ev verification.Evidence) (*verification.Outcome, error) {
	s.gotEvidence = ev
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

func issuedDocument() *document.IssuedDocument {
	now := time.Now().UTC().Truncate(time.Second)
	return &document.IssuedDocument{
		ID:            domain.NewDocumentID(),
		ApplicantID:   domain.ApplicantID(uuid.New()),
		ApplicationID: domain.ApplicationID(uuid.New()),
		Bytes:         []byte("VDSF-envelope-bytes"),
		AnchorRef:     "local-" + uuid.NewString(),
		Signature:     "c2lnbmF0dXJl",
		Receipt:       "receipt-token",
		IssuedAt:      now,
		ExpiresAt:     now.Add(10 * 365 * 24 * time.Hour),
	}
}

func newTestRouter(issuer Issuer, verifier DocumentVerifier, docStore store.Store) http.Handler {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := NewDocumentHandler(issuer, verifier, docStore, logger)

	r := chi.NewRouter()
	r.Route("/v1/documents", func(r chi.Router) {
		r.Post("/", handler.handleIssue)
		r.Post("/verify", handler.handleVerify)
		r.Get("/{id}", handler.handleGet)
	})
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleIssue_Success(t *testing.T) {
	doc := issuedDocument()
	issuer := &stubIssuer{result: &issuance.Result{
		Document: doc,
		Identity: &verdict.Verdict{
			Status:     verdict.StatusVerified,
			Confidence: 95,
			MatchLevel: verdict.MatchExact,
		},
	}}
	router := newTestRouter(issuer, &stubVerifier{}, store.New())

	rec := postJSON(t, router, "/v1/documents/", map[string]any{
		"applicant_id":   uuid.NewString(),
		"application_id": uuid.NewString(),
		"document_type":  "national_identity_card",
		"method":         "by_id",
		"national_id":    "8001015009087",
		"biographic": map[string]string{
			"first_names":   "Jane",
			"surname":       "Doe",
			"date_of_birth": "1980-01-01",
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp issueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, doc.ID.String(), resp.DocumentID)
	assert.Equal(t, string(issuance.StateIssued), resp.Status)
	assert.Equal(t, base64.StdEncoding.EncodeToString(doc.Bytes), resp.Document)
	assert.Equal(t, doc.AnchorRef, resp.AnchorRef)
	assert.Equal(t, doc.Receipt, resp.Receipt)
	assert.Equal(t, "verified", resp.Identity.Status)
	assert.Nil(t, resp.Biometric)

	assert.Equal(t, "8001015009087", issuer.gotReq.Identity.NationalID)
	assert.Equal(t, "Doe", issuer.gotReq.Holder.Surname)
}

func TestHandleIssue_BadRequests(t *testing.T) {
	router := newTestRouter(&stubIssuer{}, &stubVerifier{}, store.New())

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/documents/", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed applicant id", func(t *testing.T) {
		rec := postJSON(t, router, "/v1/documents/", map[string]any{
			"applicant_id":   "not-a-uuid",
			"application_id": uuid.NewString(),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("template data not base64", func(t *testing.T) {
		rec := postJSON(t, router, "/v1/documents/", map[string]any{
			"applicant_id":   uuid.NewString(),
			"application_id": uuid.NewString(),
			"templates": []map[string]any{
				{"id": "t1", "modality": "fingerprint", "data": "!!!not-base64!!!"},
			},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleIssue_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{
			"identity mismatch",
			dErrors.NewWithSuggestion(dErrors.KindNoMatch, "identity could not be confirmed", "review the application"),
			http.StatusUnprocessableEntity,
			"no_match",
		},
		{
			"registry down",
			dErrors.New(dErrors.KindRegistryUnreachable, "population registry unavailable"),
			http.StatusServiceUnavailable,
			"registry_unreachable",
		},
		{
			"anchor down",
			dErrors.New(dErrors.KindAnchorFailed, "anchoring failed"),
			http.StatusBadGateway,
			"anchor_failed",
		},
		{
			"plain error",
			context.DeadlineExceeded,
			http.StatusInternalServerError,
			"internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubIssuer{err: tt.err}, &stubVerifier{}, store.New())

			rec := postJSON(t, router, "/v1/documents/", map[string]any{
				"applicant_id":   uuid.NewString(),
				"application_id": uuid.NewString(),
			})
			require.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKind, body["error"])
		})
	}
}

func TestHandleVerify_Success(t *testing.T) {
	verifier := &stubVerifier{outcome: &verification.Outcome{
		Valid: true,
		Verdict: &verdict.Verdict{
			Status:     verdict.StatusVerified,
			Confidence: 95,
			MatchLevel: verdict.MatchExact,
		},
		Checks: map[verification.Check]verification.CheckResult{
			verification.CheckFeatures: {Passed: true},
			verification.CheckAnchor:   {Passed: true},
			verification.CheckIdentity: {Passed: true},
		},
		AnchorRef: "local-ref",
	}}
	router := newTestRouter(&stubIssuer{}, verifier, store.New())

	docID := domain.NewDocumentID()
	rec := postJSON(t, router, "/v1/documents/verify", map[string]any{
		"document_id": docID.String(),
		"receipt":     "receipt-token",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp verifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, "verified", resp.Verdict.Status)
	assert.True(t, resp.Checks["features"].Passed)

	assert.Equal(t, docID, verifier.gotEvidence.DocumentID)
	assert.Equal(t, "receipt-token", verifier.gotEvidence.Receipt)
}

func TestHandleVerify_EvidenceValidation(t *testing.T) {
	router := newTestRouter(&stubIssuer{}, &stubVerifier{}, store.New())

	t.Run("neither id nor document", func(t *testing.T) {
		rec := postJSON(t, router, "/v1/documents/verify", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("document not base64", func(t *testing.T) {
		rec := postJSON(t, router, "/v1/documents/verify", map[string]any{
			"document": "!!!not-base64!!!",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("explicit identity evidence is forwarded", func(t *testing.T) {
		verifier := &stubVerifier{outcome: &verification.Outcome{
			Valid:   false,
			Verdict: &verdict.Verdict{Status: verdict.StatusNotVerified},
			Checks:  map[verification.Check]verification.CheckResult{},
		}}
		router := newTestRouter(&stubIssuer{}, verifier, store.New())

		rec := postJSON(t, router, "/v1/documents/verify", map[string]any{
			"document":    base64.StdEncoding.EncodeToString([]byte("envelope")),
			"method":      "by_id",
			"national_id": "8001015009087",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, verifier.gotEvidence.Identity)
		assert.Equal(t, "8001015009087", verifier.gotEvidence.Identity.NationalID)
	})
}

func TestHandleGet(t *testing.T) {
	docStore := store.New()
	doc := issuedDocument()
	require.NoError(t, docStore.Save(context.Background(), doc))
	router := newTestRouter(&stubIssuer{}, &stubVerifier{}, docStore)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/documents/"+doc.ID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp documentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, doc.ID.String(), resp.DocumentID)
		assert.Equal(t, base64.StdEncoding.EncodeToString(doc.Bytes), resp.Document)
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/documents/"+domain.NewDocumentID().String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/documents/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
