package walletauth

import (
	"context"
)

// Client represents the public interface for interacting with the session service
type Client interface {
	// NewSession starts a session and returns its id and the nonce to sign
	NewSession(ctx context.Context) (Session, error)

	// Session returns the current state of a session
	Session(ctx context.Context, sessionID string) (Session, error)

	// Verify submits a signature over the session nonce
	Verify(ctx context.Context, req VerifyRequest) (VerifyResponse, error)

	// Me resolves a session token to the proven address
	Me(ctx context.Context, token string) (Identity, error)
}

// Session is the public view of a session
type Session struct {
	SessionID string `json:"sessionId"`
	Nonce     string `json:"nonce"`
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// VerifyRequest is the body of a verification
type VerifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce,omitempty"`
	SessionID string `json:"sessionId"`
}

// VerifyResponse is returned on a successful verification
type VerifyResponse struct {
	Success bool   `json:"success"`
	Address string `json:"address"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// Identity is the address bound to a session token
type Identity struct {
	Address   string `json:"address"`
	SessionID string `json:"sessionId"`
}
