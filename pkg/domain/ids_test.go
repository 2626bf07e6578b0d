package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veridoc/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid UUIDs; nil checks happen at the service layer"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseApplicantID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasKind(err, dErrors.KindInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseDocumentID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasKind(err, dErrors.KindInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseApplicationID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, ApplicationID(validUUID), id)
	})

	t.Run("nil UUID parses but reports IsNil", func(t *testing.T) {
		id, err := ParseDocumentID(uuid.Nil.String())
		require.NoError(t, err)
		assert.True(t, id.IsNil())
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	applicantID := ApplicantID(uuid.New())
	documentID := DocumentID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ ApplicantID = documentID   // compile error
	// var _ DocumentID = applicantID   // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(applicantID), uuid.UUID(documentID))
}

func TestNewDocumentID(t *testing.T) {
	id := NewDocumentID()
	assert.False(t, id.IsNil())
	assert.NotEqual(t, NewDocumentID(), id)
}
