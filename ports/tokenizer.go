package ports

import "github.com/layer-3/walletauth/core"

// Tokenizer issues and parses session attestation tokens
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)
}

// TokenSource draws the random identifiers used by the protocol
type TokenSource interface {
	SessionID() (string, error)
	Nonce() (string, error)
}

// SignatureVerifier recovers the address that signed a message
type SignatureVerifier interface {
	Recover(message, signature string) (string, error)
}
