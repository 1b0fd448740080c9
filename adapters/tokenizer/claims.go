package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims attest that a wallet proved control of Subject within session ID
type SessionClaims struct {
	jwt.RegisteredClaims
	Connected bool `json:"connected"`
}
