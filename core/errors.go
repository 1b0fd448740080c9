package core

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrInvalidNonce       = errors.New("nonce does not match session")
	ErrSignatureMismatch  = errors.New("signature does not match address")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrRecoveryFailure    = errors.New("signer recovery failed")
	ErrAddressConflict    = errors.New("session already connected to another address")
	ErrStoreUnavailable   = errors.New("session store unavailable")
	ErrStoreTimeout       = errors.New("session store timed out")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
)

// MismatchError reports the recovered and claimed addresses of a failed verification.
type MismatchError struct {
	Recovered string
	Claimed   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("signature does not match address: recovered %s, claimed %s", e.Recovered, e.Claimed)
}

func (e *MismatchError) Unwrap() error {
	return ErrSignatureMismatch
}

// Code returns the machine-readable code for an error of the taxonomy.
// Unknown errors map to "InternalError".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMissingFields):
		return "MissingFields"
	case errors.Is(err, ErrInvalidSession), errors.Is(err, ErrSessionNotFound):
		return "InvalidSession"
	case errors.Is(err, ErrInvalidNonce):
		return "InvalidNonce"
	case errors.Is(err, ErrSignatureMismatch):
		return "SignatureMismatch"
	case errors.Is(err, ErrMalformedSignature):
		return "MalformedSignature"
	case errors.Is(err, ErrRecoveryFailure):
		return "RecoveryFailure"
	case errors.Is(err, ErrAddressConflict):
		return "AddressConflict"
	case errors.Is(err, ErrStoreTimeout):
		return "StoreTimeout"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	case errors.Is(err, ErrTokenExpired):
		return "TokenExpired"
	case errors.Is(err, ErrInvalidToken):
		return "InvalidToken"
	default:
		return "InternalError"
	}
}
