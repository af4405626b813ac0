package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "custodia/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs".
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseSubjectID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseSubjectID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseSubjectID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseSubjectID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, valid.String(), id.String())
		assert.False(t, id.IsNil())
	})

	t.Run("all ID types share the same validation", func(t *testing.T) {
		for _, input := range []string{"", "garbage", uuid.Nil.String()} {
			_, errBreach := ParseBreachID(input)
			_, errPolicy := ParsePolicyID(input)
			_, errActivity := ParseActivityID(input)
			assert.Error(t, errBreach)
			assert.Error(t, errPolicy)
			assert.Error(t, errActivity)
		}

		valid := uuid.New().String()
		_, errBreach := ParseBreachID(valid)
		_, errPolicy := ParsePolicyID(valid)
		_, errActivity := ParseActivityID(valid)
		assert.NoError(t, errBreach)
		assert.NoError(t, errPolicy)
		assert.NoError(t, errActivity)
	})
}

func TestNewIDs_AreNonNil(t *testing.T) {
	assert.False(t, NewSubjectID().IsNil())
	assert.False(t, NewBreachID().IsNil())
	assert.False(t, NewPolicyID().IsNil())
	assert.False(t, NewActivityID().IsNil())
}
