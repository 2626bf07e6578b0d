package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veridoc/pkg/domain-errors"
)

// TestParseNationalID_Invariants validates the format invariant:
// "a national ID is exactly 13 numeric characters, rejected before any
// network call".
func TestParseNationalID_Invariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"valid thirteen digits", "8001015009087", true},
		{"empty", "", false},
		{"too short", "800101500908", false},
		{"too long", "80010150090871", false},
		{"contains letter", "80010150O9087", false},
		{"contains space", "800101 509087", false},
		{"contains hyphen", "800101-509087", false},
		{"all zeros is structurally valid", strings.Repeat("0", 13), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseNationalID(tt.input)
			if !tt.valid {
				require.Error(t, err)
				assert.True(t, dErrors.HasKind(err, dErrors.KindInvalidInput))
				assert.True(t, id.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, id.String())
			assert.False(t, id.IsZero())
		})
	}
}

func TestNationalID_Redacted(t *testing.T) {
	t.Run("keeps only the birth date prefix", func(t *testing.T) {
		id, err := ParseNationalID("8001015009087")
		require.NoError(t, err)
		assert.Equal(t, "800101*******", id.Redacted())
		assert.NotContains(t, id.Redacted(), "5009087")
	})

	t.Run("zero value redacts to empty", func(t *testing.T) {
		var id NationalID
		assert.Equal(t, "", id.Redacted())
	})
}
