package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "contactshare/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParsePersonID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParsePersonID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParsePersonID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParsePersonID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, PersonID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	personID := PersonID(uuid.New())
	circleID := CircleID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ PersonID = circleID   // compile error
	// var _ CircleID = personID   // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(personID), uuid.UUID(circleID))
}

// TestParseID_SecurityInvariants validates parsing rules at trust
// boundaries: route parameters must reject attack vectors before they
// reach a store.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE profiles;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400​-e29b-41d4-a716-446655440000", true},

		// Edge cases
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		// Valid
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePersonID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types have identical
// parsing behavior.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errPerson := ParsePersonID(validUUID)
		_, errAttribute := ParseAttributeID(validUUID)
		_, errCircle := ParseCircleID(validUUID)
		_, errProfile := ParseProfileID(validUUID)
		_, errConnection := ParseConnectionID(validUUID)
		_, errMessage := ParseMessageID(validUUID)
		_, errToken := ParseTokenID(validUUID)

		require.NoError(t, errPerson)
		require.NoError(t, errAttribute)
		require.NoError(t, errCircle)
		require.NoError(t, errProfile)
		require.NoError(t, errConnection)
		require.NoError(t, errMessage)
		require.NoError(t, errToken)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errPerson := ParsePersonID(input)
			_, errAttribute := ParseAttributeID(input)
			_, errCircle := ParseCircleID(input)
			_, errProfile := ParseProfileID(input)
			_, errConnection := ParseConnectionID(input)
			_, errMessage := ParseMessageID(input)
			_, errToken := ParseTokenID(input)

			require.Error(t, errPerson)
			require.Error(t, errAttribute)
			require.Error(t, errCircle)
			require.Error(t, errProfile)
			require.Error(t, errConnection)
			require.Error(t, errMessage)
			require.Error(t, errToken)
		})
	}
}

// TestIsNil distinguishes the unbound zero value from a minted ID.
func TestIsNil(t *testing.T) {
	assert.True(t, PersonID{}.IsNil())
	assert.True(t, CircleID{}.IsNil())
	assert.False(t, NewPersonID().IsNil())
	assert.False(t, NewCircleID().IsNil())
}
