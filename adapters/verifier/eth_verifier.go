package verifier

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// EthVerifier recovers signers of EIP-191 personal messages
type EthVerifier struct{}

// NewEthVerifier creates a new personal message verifier
func NewEthVerifier() ports.SignatureVerifier {
	return EthVerifier{}
}

// Recover returns the checksummed address that signed message.
// The signature is the 65 byte R || S || V form, hex encoded with or without 0x.
func (EthVerifier) Recover(message, signature string) (string, error) {
	if len(signature) >= 2 && signature[:2] != "0x" && signature[:2] != "0X" {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("failed to decode signature: %w", core.ErrMalformedSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrMalformedSignature)
	}

	// Wallets emit V as 27/28, go-ethereum expects 0/1
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return "", fmt.Errorf("invalid recovery id %d: %w", sig[crypto.RecoveryIDOffset], core.ErrMalformedSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, core.ErrRecoveryFailure)
	}

	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
