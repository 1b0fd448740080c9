package tokens

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomSource(t *testing.T) {
	src := NewRandomSource()
	seenIDs := make(map[string]bool)
	seenNonces := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		id, err := src.SessionID()
		require.NoError(t, err)
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(4), parsed.Version())
		assert.False(t, seenIDs[id])
		seenIDs[id] = true

		nonce, err := src.Nonce()
		require.NoError(t, err)
		assert.Len(t, nonce, 2+2*NonceBytes)
		assert.False(t, seenNonces[nonce])
		seenNonces[nonce] = true
	}
}
