package guid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGuid(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		g, err := ParseGuid("12345678-1234-1234-1234-123456789ABC")
		require.NoError(t, err)
		assert.Equal(t, "12345678-1234-1234-1234-123456789abc", g.String())
	})

	t.Run("wrong size", func(t *testing.T) {
		_, err := ParseGuid("12345678-1234-1234-1234-123456789AB")
		require.Error(t, err)
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, ErrCodeInvalidStringSize, perr.Code)
	})

	t.Run("bad characters", func(t *testing.T) {
		_, err := ParseGuid("XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX")
		require.Error(t, err)
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, ErrCodeInvalidString, perr.Code)
	})
}

func TestFNV1a32Guid_NormalizesCaseAndBraces(t *testing.T) {
	bare := FNV1a32Guid("12345678-1234-1234-1234-123456789abc")
	braced := FNV1a32Guid("{12345678-1234-1234-1234-123456789ABC}")
	assert.Equal(t, bare, braced)
}

// TestFNV1a32Guid_MatchesOriginalHash pins a value computed from the
// original Fnv1aHashGuid (upper-cases before hashing, so a lower-case
// hex digit must not change the result relative to its upper-case form).
func TestFNV1a32Guid_MatchesOriginalHash(t *testing.T) {
	got := FNV1a32Guid("{12345678-1234-1234-1234-123456789abc}")
	assert.Equal(t, uint32(0xc826a790), got)
}

func TestObjectIdCodec(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		id := ObjectId{SessionID: 7, Generation: 3, LocalID: 0xABCD1234}
		assert.Equal(t, id, DecodeObjectId(id.Encode()))
	})

	t.Run("null object is all zero", func(t *testing.T) {
		assert.Equal(t, uint64(0), ObjectId{}.Encode())
		assert.True(t, IsNull(0))
		assert.False(t, IsNull(1))
	})
}

func TestGenerationRollover(t *testing.T) {
	assert.Equal(t, uint16(1), NextGeneration(0xFFFF))
	assert.NotEqual(t, uint16(0), NextGeneration(0xFFFF)) // generation 0 is never produced by NextGeneration
	assert.Equal(t, uint16(2), NextGeneration(1))
}
