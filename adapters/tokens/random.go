package tokens

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/layer-3/walletauth/ports"
)

// NonceBytes is the entropy of a login nonce
const NonceBytes = 16

// RandomSource draws identifiers from crypto/rand
type RandomSource struct{}

// NewRandomSource creates a token source backed by the system CSPRNG
func NewRandomSource() ports.TokenSource {
	return RandomSource{}
}

// SessionID returns a random UUIDv4
func (RandomSource) SessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return id.String(), nil
}

// Nonce returns NonceBytes random bytes, 0x-prefixed hex
func (RandomSource) Nonce() (string, error) {
	b := make([]byte, NonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hexutil.Encode(b), nil
}
