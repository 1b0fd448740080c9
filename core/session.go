package core

import "strings"

// LoginMessagePrefix is prepended to the nonce to form the message a wallet signs.
// Existing clients construct the same string, so it must not change.
const LoginMessagePrefix = "Login nonce: "

// Session is the server-side record binding a session identifier to a nonce
// and, after a successful verification, to the proven signer address.
type Session struct {
	ID        string `json:"sessionId"`
	Nonce     string `json:"nonce"`
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	SingleUse bool   `json:"singleUse,omitempty"` // issued by the legacy nonce flow
}

// LoginMessage returns the canonical message signed for the session nonce.
func LoginMessage(nonce string) string {
	return LoginMessagePrefix + nonce
}

// VerifyRequest carries a client's proof for a session
type VerifyRequest struct {
	SessionID string
	Address   string
	Signature string
	Nonce     string // optional, only compared against the stored nonce
}

// VerifyResult is returned after a successful verification
type VerifyResult struct {
	SessionID string
	Address   string
	Token     string
}

// SameAddress compares two hex addresses ignoring case and an optional 0x prefix.
func SameAddress(a, b string) bool {
	return normalizeAddress(a) == normalizeAddress(b)
}

func normalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	return strings.TrimPrefix(addr, "0x")
}
