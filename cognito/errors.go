package cognito

import (
	"context"
	"errors"
	"fmt"
)

// Reason tags why a token was rejected.
type Reason string

const (
	ReasonMissingToken         Reason = "missing_token"
	ReasonMalformedToken       Reason = "malformed_token"
	ReasonUnsupportedAlgorithm Reason = "unsupported_algorithm"
	ReasonSignatureInvalid     Reason = "signature_invalid"
	ReasonKeyNotFound          Reason = "key_not_found"
	ReasonExpired              Reason = "expired"
	ReasonAudienceMismatch     Reason = "audience_mismatch"
	ReasonIssuerMismatch       Reason = "issuer_mismatch"
	ReasonWrongTokenUse        Reason = "wrong_token_use"
	ReasonProviderUnreachable  Reason = "provider_unreachable"
	ReasonRequestCanceled      Reason = "request_canceled"
)

// AuthFailure is the error returned for every rejected token. The reason is for
// server-side logs only and must not be echoed to the caller.
type AuthFailure struct {
	Reason Reason
	Err    error
}

// Error implements the error interface
func (f *AuthFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return string(f.Reason)
}

// Unwrap implements errors.Unwrap
func (f *AuthFailure) Unwrap() error {
	return f.Err
}

// Is matches any AuthFailure with the same reason
func (f *AuthFailure) Is(target error) bool {
	t, ok := target.(*AuthFailure)
	if !ok {
		return false
	}
	return f.Reason == t.Reason
}

// Infrastructure reports whether the failure was caused by the gateway's own
// dependencies rather than by the presented credential.
func (f *AuthFailure) Infrastructure() bool {
	return f.Reason == ReasonProviderUnreachable
}

// Class returns "infrastructure", "client" or "credential" for logs.
func (f *AuthFailure) Class() string {
	switch {
	case f.Infrastructure():
		return "infrastructure"
	case f.Reason == ReasonRequestCanceled:
		return "client"
	default:
		return "credential"
	}
}

func newFailure(reason Reason, err error) *AuthFailure {
	return &AuthFailure{Reason: reason, Err: err}
}

// Sentinels for errors.Is
var (
	ErrMissingToken         = &AuthFailure{Reason: ReasonMissingToken}
	ErrMalformedToken       = &AuthFailure{Reason: ReasonMalformedToken}
	ErrUnsupportedAlgorithm = &AuthFailure{Reason: ReasonUnsupportedAlgorithm}
	ErrSignatureInvalid     = &AuthFailure{Reason: ReasonSignatureInvalid}
	ErrKeyNotFound          = &AuthFailure{Reason: ReasonKeyNotFound}
	ErrTokenExpired         = &AuthFailure{Reason: ReasonExpired}
	ErrInvalidAudience      = &AuthFailure{Reason: ReasonAudienceMismatch}
	ErrInvalidIssuer        = &AuthFailure{Reason: ReasonIssuerMismatch}
	ErrWrongTokenUse        = &AuthFailure{Reason: ReasonWrongTokenUse}
	ErrProviderUnreachable  = &AuthFailure{Reason: ReasonProviderUnreachable}
	ErrRequestCanceled      = &AuthFailure{Reason: ReasonRequestCanceled}
)

// FailureOf extracts the AuthFailure from err. A bare context cancellation is
// reported as request_canceled; any other error that is not an auth failure is
// reported as provider_unreachable, since it did not come from inspecting the
// credential.
func FailureOf(err error) *AuthFailure {
	if err == nil {
		return nil
	}
	var f *AuthFailure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.Canceled) {
		return newFailure(ReasonRequestCanceled, err)
	}
	return newFailure(ReasonProviderUnreachable, err)
}
