package walletauth

import (
	"errors"
	"fmt"

	"github.com/layer-3/walletauth/core"
)

// ErrUnexpectedResponse is returned when the server answers with something other than the API
var ErrUnexpectedResponse = errors.New("unexpected response")

// APIError is a failed API call. It unwraps to the matching core error, so
// callers can test it with errors.Is(err, core.ErrInvalidNonce) and friends.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
	Expected   string `json:"expected,omitempty"`
	Received   string `json:"received,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("walletauth: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("walletauth: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "MissingFields":
		return core.ErrMissingFields
	case "InvalidSession":
		return core.ErrInvalidSession
	case "InvalidNonce":
		return core.ErrInvalidNonce
	case "SignatureMismatch":
		return core.ErrSignatureMismatch
	case "MalformedSignature":
		return core.ErrMalformedSignature
	case "RecoveryFailure":
		return core.ErrRecoveryFailure
	case "AddressConflict":
		return core.ErrAddressConflict
	case "StoreTimeout":
		return core.ErrStoreTimeout
	case "StoreUnavailable":
		return core.ErrStoreUnavailable
	case "TokenExpired":
		return core.ErrTokenExpired
	case "InvalidToken":
		return core.ErrInvalidToken
	default:
		return nil
	}
}

// Retryable reports whether the call may succeed if repeated unchanged
func (e *APIError) Retryable() bool {
	return errors.Is(e, core.ErrStoreTimeout)
}
