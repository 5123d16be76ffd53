package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration indicates the authenticator configuration is
	// missing or invalid. It is fatal at construction.
	ErrInvalidConfiguration = errors.New("oauth: invalid configuration")

	// ErrProviderCommunication indicates a network or HTTP failure talking
	// to the identity provider. It is never retried by the authenticators.
	ErrProviderCommunication = errors.New("oauth: provider communication failed")

	// ErrTokenValidation indicates a token failed signature, expiry or
	// claim checks. The stateless flow reports it as "unauthenticated".
	ErrTokenValidation = errors.New("oauth: token validation failed")

	// ErrMissingToken indicates no token was provided for validation.
	ErrMissingToken = fmt.Errorf("%w: missing token", ErrTokenValidation)

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = fmt.Errorf("%w: token expired", ErrTokenValidation)

	// ErrInvalidClaims indicates the token claims are invalid or missing
	// required fields.
	ErrInvalidClaims = fmt.Errorf("%w: invalid claims", ErrTokenValidation)

	// ErrStateMismatch indicates the login callback's state parameter does
	// not match the value stored when the login redirect was issued.
	ErrStateMismatch = errors.New("oauth: login state mismatch")
)

// ProviderError describes a failed call to the identity provider.
// It matches ErrProviderCommunication with errors.Is.
type ProviderError struct {
	// Op names the provider operation, e.g. "exchange_code".
	Op string

	// StatusCode is the HTTP status, or 0 for transport failures.
	StatusCode int

	// Description carries the provider's error description, if any.
	Description string

	Err error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("oauth: provider %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProviderCommunication}
	}
	return []error{ErrProviderCommunication, e.Err}
}
