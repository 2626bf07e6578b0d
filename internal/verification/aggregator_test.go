package verification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veridoc/internal/anchor"
	"veridoc/internal/document"
	"veridoc/internal/document/store"
	"veridoc/internal/identity"
	"veridoc/internal/issuance"
	"veridoc/internal/platform/config"
	"veridoc/internal/secfeature"
	"veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
)

// fixture wires the same collaborators the server uses in test mode: the
// fixture registry, a local anchor signer, and the in-memory document store.
type fixture struct {
	orchestrator *issuance.Orchestrator
	aggregator   *Aggregator
	store        *store.InMemoryStore
	applier      *secfeature.Applier
	signer       *anchor.LocalSigner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	applier, err := secfeature.NewApplier([]byte("verification-feature-key"))
	require.NoError(t, err)
	verifier, err := secfeature.NewVerifier([]byte("verification-feature-key"))
	require.NoError(t, err)
	receipts, err := issuance.NewReceiptSigner([]byte("verification-receipt-key"))
	require.NoError(t, err)

	registry, err := identity.NewFixtureClient(config.EnvTest)
	require.NoError(t, err)
	identitySvc := identity.NewService(registry, nil)

	signer, err := anchor.NewLocalSigner(config.EnvTest, anchor.NewInMemoryRecordStore())
	require.NoError(t, err)

	docStore := store.New()

	orchestrator, err := issuance.New(issuance.Config{
		Identity: identitySvc,
		Applier:  applier,
		Verifier: verifier,
		Anchor:   signer,
		Store:    docStore,
		Receipts: receipts,
		Retry:    issuance.RetryPolicy{MaxAttempts: 1, Backoff: 0},
	})
	require.NoError(t, err)

	aggregator, err := New(Config{
		Identity: identitySvc,
		Verifier: verifier,
		Anchor:   signer,
		Store:    docStore,
		Receipts: receipts,
	})
	require.NoError(t, err)

	return &fixture{
		orchestrator: orchestrator,
		aggregator:   aggregator,
		store:        docStore,
		applier:      applier,
		signer:       signer,
	}
}

func (f *fixture) issue(t *testing.T) *document.IssuedDocument {
	t.Helper()
	result, err := f.orchestrator.Issue(context.Background(), issuance.IssueRequest{
		Identity: identity.Request{
			ApplicantID:   domain.ApplicantID(uuid.New()),
			ApplicationID: domain.ApplicationID(uuid.New()),
			Method:        identity.MethodByID,
			NationalID:    "8001015009087",
		},
		Holder: document.Holder{
			FirstNames:  "Jane",
			Surname:     "Doe",
			DateOfBirth: "1980-01-01",
			NationalID:  "8001015009087",
		},
		DocumentType: "national_identity_card",
	})
	require.NoError(t, err)
	return result.Document
}

func TestVerifyDocument_IssuedDocumentIsValid(t *testing.T) {
	f := newFixture(t)
	doc := f.issue(t)

	t.Run("by stored document id", func(t *testing.T) {
		outcome, err := f.aggregator.VerifyDocument(context.Background(), Evidence{DocumentID: doc.ID})
		require.NoError(t, err)

		assert.True(t, outcome.Valid)
		assert.True(t, outcome.Verdict.Verified())
		assert.True(t, outcome.Checks[CheckFeatures].Passed)
		assert.True(t, outcome.Checks[CheckAnchor].Passed)
		assert.True(t, outcome.Checks[CheckIdentity].Passed)
		assert.True(t, outcome.Checks[CheckReceipt].Passed)
		assert.Empty(t, outcome.Discrepancies)
		require.NotNil(t, outcome.Features)
		assert.True(t, outcome.Features.AllPresent)
		assert.Equal(t, doc.AnchorRef, outcome.AnchorRef)
	})

	t.Run("by externally supplied bytes", func(t *testing.T) {
		outcome, err := f.aggregator.VerifyDocument(context.Background(), Evidence{
			DocumentBytes: doc.Bytes,
			AnchorRef:     doc.AnchorRef,
			Receipt:       doc.Receipt,
		})
		require.NoError(t, err)

		assert.True(t, outcome.Valid)
		assert.True(t, outcome.Checks[CheckReceipt].Passed)
	})

	t.Run("without receipt the receipt check is skipped", func(t *testing.T) {
		outcome, err := f.aggregator.VerifyDocument(context.Background(), Evidence{
			DocumentBytes: doc.Bytes,
			AnchorRef:     doc.AnchorRef,
		})
		require.NoError(t, err)

		assert.True(t, outcome.Valid)
		_, ran := outcome.Checks[CheckReceipt]
		assert.False(t, ran)
	})
}

func TestVerifyDocument_TamperedBytesAreInvalid(t *testing.T) {
	f := newFixture(t)
	doc := f.issue(t)

	tampered := append([]byte(nil), doc.Bytes...)
	tampered[len(tampered)-1] ^= 0xFF

	outcome, err := f.aggregator.VerifyDocument(context.Background(), Evidence{
		DocumentBytes: tampered,
		AnchorRef:     doc.AnchorRef,
		Receipt:       doc.Receipt,
	})
	require.NoError(t, err)

	assert.False(t, outcome.Valid)
	assert.False(t, outcome.Verdict.Verified())
	assert.False(t, outcome.Checks[CheckFeatures].Passed)
	assert.False(t, outcome.Checks[CheckAnchor].Passed, "the anchor digest must not match tampered bytes")
	assert.NotEmpty(t, outcome.Discrepancies)
}

func TestVerifyDocument_UnknownAnchorReference(t *testing.T) {
	f := newFixture(t)
	doc := f.issue(t)

	outcome, err := f.aggregator.VerifyDocument(context.Background(), Evidence{
		DocumentBytes: doc.Bytes,
		AnchorRef:     "local-" + uuid.NewString(),
	})
	require.NoError(t, err)

	assert.False(t, outcome.Valid)
	assert.True(t, outcome.Checks[CheckFeatures].Passed)
	assert.False(t, outcome.Checks[CheckAnchor].Passed)
}

func TestVerifyDocument_MissingAnchorReference(t *testing.T) {
	f := newFixture(t)
	doc := f.issue(t)

	outcome, err := f.aggregator.VerifyDocument(context.Background(), Evidence{
		DocumentBytes: doc.Bytes,
	})
	require.NoError(t, err)

	assert.False(t, outcome.Valid)
	assert.False(t, outcome.Checks[CheckAnchor].Passed)
}

func TestVerifyDocument_ReceiptForDifferentDocument(t *testing.T) {
	f := newFixture(t)
	first := f.issue(t)
	second := f.issue(t)

	outcome, err := f.aggregator.VerifyDocument(context.Background(), Evidence{
		DocumentBytes: first.Bytes,
		AnchorRef:     first.AnchorRef,
		Receipt:       second.Receipt,
	})
	require.NoError(t, err)

	assert.False(t, outcome.Valid)
	assert.False(t, outcome.Checks[CheckReceipt].Passed)
	assert.True(t, outcome.Checks[CheckFeatures].Passed)
	assert.True(t, outcome.Checks[CheckAnchor].Passed)
}

func TestVerifyDocument_ExpiredWindowIsADiscrepancyNotAFailure(t *testing.T) {
	f := newFixture(t)
	doc := f.issue(t)

	// Rewind the stored validity window without touching the tamper evidence.
	expired := *doc
	expired.ID = domain.NewDocumentID()
	expired.Receipt = ""
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, f.store.Save(context.Background(), &expired))

	outcome, err := f.aggregator.VerifyDocument(context.Background(), Evidence{DocumentID: expired.ID})
	require.NoError(t, err)

	assert.True(t, outcome.Valid, "tamper evidence still holds for an out-of-window document")
	require.NotEmpty(t, outcome.Discrepancies)
	assert.Contains(t, outcome.Discrepancies[0], "validity window expired")
}

func TestVerifyDocument_EvidenceResolution(t *testing.T) {
	f := newFixture(t)

	t.Run("unknown document id", func(t *testing.T) {
		_, err := f.aggregator.VerifyDocument(context.Background(), Evidence{
			DocumentID: domain.NewDocumentID(),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasKind(err, dErrors.KindInvalidInput))
	})

	t.Run("no id and no bytes", func(t *testing.T) {
		_, err := f.aggregator.VerifyDocument(context.Background(), Evidence{})
		require.Error(t, err)
		assert.True(t, dErrors.HasKind(err, dErrors.KindInvalidInput))
	})
}

func TestVerifyDocument_MalformedBytesFailTheFeatureCheck(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.aggregator.VerifyDocument(context.Background(), Evidence{
		DocumentBytes: []byte("not an envelope"),
	})
	require.NoError(t, err)

	assert.False(t, outcome.Valid)
	assert.False(t, outcome.Checks[CheckFeatures].Passed)
	assert.False(t, outcome.Checks[CheckIdentity].Passed, "identity cannot be reconstructed without content")
}

func TestVerifyDocument_ExplicitIdentityEvidenceOverridesContent(t *testing.T) {
	f := newFixture(t)
	doc := f.issue(t)

	// An explicit request for an applicant the registry does not know fails
	// re-confirmation even though the document itself is intact.
	outcome, err := f.aggregator.VerifyDocument(context.Background(), Evidence{
		DocumentBytes: doc.Bytes,
		AnchorRef:     doc.AnchorRef,
		Identity: &identity.Request{
			ApplicantID:   domain.ApplicantID(uuid.New()),
			ApplicationID: domain.ApplicationID(uuid.New()),
			Method:        identity.MethodByID,
			NationalID:    "1112223334445",
		},
	})
	require.NoError(t, err)

	assert.False(t, outcome.Valid)
	assert.True(t, outcome.Checks[CheckFeatures].Passed)
	assert.False(t, outcome.Checks[CheckIdentity].Passed)
}
