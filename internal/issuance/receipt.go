package issuance

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "veridoc/pkg/domain-errors"
)

const receiptIssuer = "veridoc"

// ReceiptClaims is the signed summary of a completed issuance: what was
// checked, with what outcome, and where the document is anchored.
type ReceiptClaims struct {
	DocumentID          string                 `json:"document_id"`
	ApplicantID         string                 `json:"applicant_id"`
	AnchorRef           string                 `json:"anchor_ref"`
	IdentityStatus      string                 `json:"identity_status"`
	IdentityConfidence  float64                `json:"identity_confidence"`
	BiometricStatus     string                 `json:"biometric_status,omitempty"`
	BiometricConfidence float64                `json:"biometric_confidence,omitempty"`
	Stages              map[Stage]StageOutcome `json:"stages"`
	jwt.RegisteredClaims
}

// ReceiptSigner issues and validates issuance receipts. HS256 with the
// process-wide receipt key; the receipt is the extended-signature check
// during re-verification.
type ReceiptSigner struct {
	signingKey []byte
}

// NewReceiptSigner creates a receipt signer.
func NewReceiptSigner(signingKey []byte) (*ReceiptSigner, error) {
	if len(signingKey) == 0 {
		return nil, dErrors.New(dErrors.KindConfigurationError, "receipt signing key is required")
	}
	return &ReceiptSigner{signingKey: signingKey}, nil
}

// Issue signs a receipt for a completed issuance. The receipt expires with
// the document.
func (s *ReceiptSigner) Issue(claims ReceiptClaims, issuedAt, expiresAt time.Time) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.DocumentID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		Issuer:    receiptIssuer,
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.KindInternal, "sign issuance receipt")
	}
	return signed, nil
}

// Validate parses and verifies a receipt. Expired receipts fail closed: the
// document's validity window has lapsed with them.
func (s *ReceiptSigner) Validate(tokenString string) (*ReceiptClaims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.KindInvalidInput, "empty receipt")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &ReceiptClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.KindInvalidInput, "receipt expired")
		}
		return nil, dErrors.New(dErrors.KindInvalidInput, "invalid receipt")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.KindInvalidInput, "invalid receipt")
	}

	claims, ok := parsed.Claims.(*ReceiptClaims)
	if !ok {
		return nil, dErrors.New(dErrors.KindInvalidInput, "invalid receipt claims")
	}
	return claims, nil
}
